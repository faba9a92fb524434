// Package revalidate runs background refresh tasks on a bounded worker
// pool. A key that is already queued or running is not scheduled twice.
package revalidate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_revalidate_tasks_total",
		Help: "Total number of background tasks by outcome",
	}, []string{"outcome"}) // "ok", "error", "duplicate", "queue_full", "closed"

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_revalidate_task_duration_seconds",
		Help:    "Duration of background tasks",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_revalidate_queue_depth",
		Help: "Number of background tasks waiting for a worker",
	})
)

var (
	// ErrQueueFull indicates the task queue has no free slot
	ErrQueueFull = errors.New("revalidation queue full")

	// ErrDuplicate indicates a task with the same key is queued or running
	ErrDuplicate = errors.New("revalidation already scheduled")

	// ErrClosed indicates the scheduler no longer accepts tasks
	ErrClosed = errors.New("scheduler closed")
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Config holds scheduler settings.
type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds each task
	Timeout time.Duration
}

// DefaultConfig returns the default scheduler settings.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		QueueSize: 64,
		Timeout:   30 * time.Second,
	}
}

type job struct {
	key  string
	task Task
}

// Scheduler is a fixed-size worker pool fed by a bounded queue. Tasks run
// detached from any request context.
type Scheduler struct {
	cfg    Config
	logger zerolog.Logger

	queue chan job
	wg    sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts a scheduler. Zero config fields take the defaults.
func New(cfg Config, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan job, cfg.QueueSize),
		inflight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return s
}

// Submit schedules task under key. It never blocks. Returns ErrDuplicate
// if the key is queued or running, ErrQueueFull if no slot is free and
// ErrClosed after Close.
func (s *Scheduler) Submit(key string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		tasksTotal.WithLabelValues("closed").Inc()
		return ErrClosed
	}
	if _, ok := s.inflight[key]; ok {
		tasksTotal.WithLabelValues("duplicate").Inc()
		return ErrDuplicate
	}

	select {
	case s.queue <- job{key: key, task: task}:
		s.inflight[key] = struct{}{}
		queueDepth.Set(float64(len(s.queue)))
		return nil
	default:
		tasksTotal.WithLabelValues("queue_full").Inc()
		s.logger.Warn().Str("key", key).Msg("Revalidation queue full - task dropped")
		return ErrQueueFull
	}
}

// Pending reports whether key is queued or running.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[key]
	return ok
}

// Close stops accepting tasks, lets queued tasks finish and waits for the
// workers. Cancelling ctx aborts running tasks instead of waiting.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for j := range s.queue {
		queueDepth.Set(float64(len(s.queue)))
		s.run(id, j)

		s.mu.Lock()
		delete(s.inflight, j.key)
		s.mu.Unlock()
	}
}

func (s *Scheduler) run(workerID int, j job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			tasksTotal.WithLabelValues("error").Inc()
			s.logger.Error().
				Interface("panic", r).
				Str("key", j.key).
				Msg("Background task panicked")
		}
	}()

	err := j.task(ctx)
	taskDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		tasksTotal.WithLabelValues("error").Inc()
		s.logger.Warn().
			Err(err).
			Str("key", j.key).
			Int("worker_id", workerID).
			Dur("duration", time.Since(start)).
			Msg("Background task failed")
		return
	}

	tasksTotal.WithLabelValues("ok").Inc()
	s.logger.Debug().
		Str("key", j.key).
		Int("worker_id", workerID).
		Dur("duration", time.Since(start)).
		Msg("Background task complete")
}
