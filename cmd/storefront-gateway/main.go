// Command storefront-gateway serves storefront catalogue data from Supabase
// and WooCommerce behind a staleness-aware cache, a circuit breaker and a
// static fallback.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/storefront-gateway/pkg/breaker"
	"github.com/Sternrassler/storefront-gateway/pkg/cache"
	"github.com/Sternrassler/storefront-gateway/pkg/config"
	"github.com/Sternrassler/storefront-gateway/pkg/gateway"
	"github.com/Sternrassler/storefront-gateway/pkg/logging"
	"github.com/Sternrassler/storefront-gateway/pkg/pagination"
	"github.com/Sternrassler/storefront-gateway/pkg/revalidate"
	"github.com/Sternrassler/storefront-gateway/pkg/supabase"
	"github.com/Sternrassler/storefront-gateway/pkg/upstream"
	"github.com/Sternrassler/storefront-gateway/pkg/woocommerce"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Gateway failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	gw, cleanup, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newServer(gw, logger).routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      45 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting storefront gateway")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := gw.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Revalidation queue not drained")
	}
	return nil
}

// buildGateway wires the configured upstreams, the optional Redis mirror
// and the resilience components into a gateway. Upstreams without
// configuration are skipped; the chain then falls through to cache and
// static data.
func buildGateway(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*gateway.Gateway, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := gateway.Options{
		Executor:  upstream.NewExecutor(cfg.UpstreamRetry(), logger),
		Breaker:   breaker.New(cfg.BreakerSettings(), logger),
		Scheduler: revalidate.New(cfg.SchedulerSettings(), logger),
		Store:     cache.NewStore(),
		Policies:  cfg.Policies,
		Logger:    logger,
	}

	if cfg.Supabase.DSN != "" {
		pool, err := supabase.NewPool(ctx, cfg.Supabase.DSN)
		if err != nil {
			return nil, func() {}, err
		}
		closers = append(closers, pool.Close)
		opts.Primary = supabase.New(pool, cfg.Views(), logger)
		logger.Info().Msg("Primary upstream: supabase")
	} else {
		logger.Warn().Msg("SUPABASE_DB_URL not set - primary upstream disabled")
	}

	if cfg.WooCommerce.URL != "" {
		wc, err := woocommerce.New(woocommerce.Config{
			BaseURL:        cfg.WooCommerce.URL,
			ConsumerKey:    cfg.WooCommerce.ConsumerKey,
			ConsumerSecret: cfg.WooCommerce.ConsumerSecret,
			TripsCategory:  cfg.WooCommerce.TripsCategory,
			UserAgent:      cfg.UserAgent,
			Pagination:     pagination.DefaultConfig(),
		}, logger)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		opts.Secondary = wc
		logger.Info().Str("url", cfg.WooCommerce.URL).Msg("Secondary upstream: woocommerce")
	} else {
		logger.Warn().Msg("WOOCOMMERCE_URL not set - secondary upstream disabled")
	}

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable - cache mirror disabled")
			redisClient.Close()
		} else {
			closers = append(closers, func() { redisClient.Close() })
			opts.Mirror = cache.NewMirror(redisClient, cache.DefaultMirrorPrefix)
			n, err := opts.Mirror.Warm(ctx, opts.Store)
			if err != nil {
				logger.Warn().Err(err).Msg("Cache warm-up incomplete")
			}
			logger.Info().Int("entries", n).Msg("Cache warmed from Redis")
		}
	}

	gw, err := gateway.New(opts)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return gw, cleanup, nil
}
