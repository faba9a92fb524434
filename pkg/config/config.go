// Package config loads the gateway configuration from the environment,
// an optional .env file and an optional YAML policy file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/storefront-gateway/pkg/breaker"
	"github.com/Sternrassler/storefront-gateway/pkg/cache"
	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
	"github.com/Sternrassler/storefront-gateway/pkg/logging"
	"github.com/Sternrassler/storefront-gateway/pkg/revalidate"
	"github.com/Sternrassler/storefront-gateway/pkg/supabase"
	"github.com/Sternrassler/storefront-gateway/pkg/upstream"
)

// DefaultEnvFile is read by Load when no files are given.
const DefaultEnvFile = ".env"

// Config is the complete gateway configuration.
type Config struct {
	Port       string `validate:"required,numeric"`
	LogLevel   string `validate:"required,loglevel"`
	LogPretty  bool
	UserAgent  string `validate:"required"`
	PolicyFile string

	Supabase    SupabaseConfig
	WooCommerce WooCommerceConfig
	Redis       RedisConfig
	Retry       RetryConfig
	Breaker     BreakerConfig
	Scheduler   SchedulerConfig

	// Policies overrides the staleness policy of individual resources.
	Policies map[catalog.Resource]cache.Policy `validate:"-"`
}

// SupabaseConfig configures the primary upstream. An empty DSN disables it.
type SupabaseConfig struct {
	DSN            string
	CategoriesView string `validate:"required"`
	ProductsView   string `validate:"required"`
	TripsView      string `validate:"required"`
}

// WooCommerceConfig configures the secondary upstream. An empty URL disables it.
type WooCommerceConfig struct {
	URL            string `validate:"omitempty,url"`
	ConsumerKey    string `validate:"required_with=URL"`
	ConsumerSecret string `validate:"required_with=URL"`
	TripsCategory  string
}

// RedisConfig configures the cache mirror. An empty address disables it.
type RedisConfig struct {
	Addr string
	DB   int `validate:"min=0,max=15"`
}

// RetryConfig configures the upstream executor.
type RetryConfig struct {
	Attempts int `validate:"min=1,max=10"`
	Backoff  time.Duration
	Timeout  time.Duration
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	Cooldown  time.Duration
	Threshold int `validate:"min=1"`
}

// SchedulerConfig configures background revalidation.
type SchedulerConfig struct {
	Workers   int `validate:"min=1"`
	QueueSize int `validate:"min=1"`
	Timeout   time.Duration
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return logging.LogLevel(fl.Field().String()).Valid()
	})
	return v
}

// Load reads the given .env files (DefaultEnvFile when none are given),
// then builds the configuration from the environment. Missing .env files
// are ignored; variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds and validates the configuration from environment variables.
func FromEnv() (*Config, error) {
	retry := upstream.DefaultRetryConfig()
	sched := revalidate.DefaultConfig()
	views := supabase.DefaultViews()

	var errs []error
	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		LogLevel:   strings.ToLower(getEnv("LOG_LEVEL", string(logging.LevelInfo))),
		LogPretty:  getBool("LOG_PRETTY", false, &errs),
		UserAgent:  getEnv("USER_AGENT", "storefront-gateway/1.0"),
		PolicyFile: getEnv("POLICY_FILE", ""),
		Supabase: SupabaseConfig{
			DSN:            getEnv("SUPABASE_DB_URL", ""),
			CategoriesView: getEnv("SUPABASE_CATEGORIES_VIEW", views.Categories),
			ProductsView:   getEnv("SUPABASE_PRODUCTS_VIEW", views.Products),
			TripsView:      getEnv("SUPABASE_TRIPS_VIEW", views.Trips),
		},
		WooCommerce: WooCommerceConfig{
			URL:            getEnv("WOOCOMMERCE_URL", ""),
			ConsumerKey:    getEnv("WOOCOMMERCE_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("WOOCOMMERCE_CONSUMER_SECRET", ""),
			TripsCategory:  getEnv("WOOCOMMERCE_TRIPS_CATEGORY", ""),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_URL", ""),
			DB:   getInt("REDIS_DB", 0, &errs),
		},
		Retry: RetryConfig{
			Attempts: getInt("UPSTREAM_ATTEMPTS", retry.MaxAttempts, &errs),
			Backoff:  getDuration("UPSTREAM_BACKOFF", retry.InitialBackoff, &errs),
			Timeout:  getDuration("UPSTREAM_TIMEOUT", retry.Timeout, &errs),
		},
		Breaker: BreakerConfig{
			Cooldown:  getDuration("BREAKER_COOLDOWN", breaker.DefaultCooldown, &errs),
			Threshold: getInt("BREAKER_THRESHOLD", breaker.DefaultThreshold, &errs),
		},
		Scheduler: SchedulerConfig{
			Workers:   getInt("REVALIDATE_WORKERS", sched.Workers, &errs),
			QueueSize: getInt("REVALIDATE_QUEUE", sched.QueueSize, &errs),
			Timeout:   getDuration("REVALIDATE_TIMEOUT", sched.Timeout, &errs),
		},
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.PolicyFile != "" {
		policies, err := LoadPolicies(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policies = policies
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and duration bounds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"UPSTREAM_BACKOFF", c.Retry.Backoff},
		{"UPSTREAM_TIMEOUT", c.Retry.Timeout},
		{"BREAKER_COOLDOWN", c.Breaker.Cooldown},
		{"REVALIDATE_TIMEOUT", c.Scheduler.Timeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive (got %s)", d.name, d.d)
		}
	}
	for resource, p := range c.Policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid config: policy %s: %w", resource, err)
		}
	}
	return nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// UpstreamRetry returns the executor configuration.
func (c *Config) UpstreamRetry() upstream.RetryConfig {
	cfg := upstream.DefaultRetryConfig()
	cfg.MaxAttempts = c.Retry.Attempts
	cfg.InitialBackoff = c.Retry.Backoff
	cfg.Timeout = c.Retry.Timeout
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return cfg
}

// BreakerSettings returns the breaker configuration.
func (c *Config) BreakerSettings() breaker.Config {
	return breaker.Config{Cooldown: c.Breaker.Cooldown, Threshold: c.Breaker.Threshold}
}

// SchedulerSettings returns the revalidation scheduler configuration.
func (c *Config) SchedulerSettings() revalidate.Config {
	return revalidate.Config{
		Workers:   c.Scheduler.Workers,
		QueueSize: c.Scheduler.QueueSize,
		Timeout:   c.Scheduler.Timeout,
	}
}

// Views returns the Supabase view names.
func (c *Config) Views() supabase.Views {
	return supabase.Views{
		Categories: c.Supabase.CategoriesView,
		Products:   c.Supabase.ProductsView,
		Trips:      c.Supabase.TripsView,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

// policyFile is the YAML shape of a policy file:
//
//	policies:
//	  products:
//	    stale_after: 2m
//	    hard_ttl: 15m
type policyFile struct {
	Policies map[string]struct {
		StaleAfter string `yaml:"stale_after"`
		HardTTL    string `yaml:"hard_ttl"`
	} `yaml:"policies"`
}

// LoadPolicies reads per-resource staleness policies from a YAML file.
func LoadPolicies(path string) (map[catalog.Resource]cache.Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	out := make(map[catalog.Resource]cache.Policy, len(pf.Policies))
	for name, raw := range pf.Policies {
		resource, err := catalog.ParseResource(name)
		if err != nil {
			return nil, fmt.Errorf("policies: %w", err)
		}
		staleAfter, err := time.ParseDuration(raw.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("policies.%s.stale_after: %w", name, err)
		}
		hardTTL, err := time.ParseDuration(raw.HardTTL)
		if err != nil {
			return nil, fmt.Errorf("policies.%s.hard_ttl: %w", name, err)
		}
		p := cache.Policy{StaleAfter: staleAfter, HardTTL: hardTTL}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policies.%s: %w", name, err)
		}
		out[resource] = p
	}
	return out, nil
}
