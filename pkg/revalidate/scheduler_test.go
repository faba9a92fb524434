package revalidate

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestSubmit_RunsTask(t *testing.T) {
	s := New(Config{Workers: 2}, testLogger())

	done := make(chan struct{})
	if err := s.Submit("a", func(ctx context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	if err := s.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSubmit_DuplicateKey(t *testing.T) {
	s := New(Config{Workers: 1}, testLogger())
	defer s.Close(context.Background())

	release := make(chan struct{})
	var runs atomic.Int32
	task := func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}

	if err := s.Submit("gear:186|6|0", task); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Submit("gear:186|6|0", task) == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 0 {
		t.Errorf("accepted %d duplicate submissions, want 0", accepted.Load())
	}
	if !s.Pending("gear:186|6|0") {
		t.Error("Pending() = false while task is running")
	}

	close(release)
	s.Close(context.Background())

	if runs.Load() != 1 {
		t.Errorf("task ran %d times, want 1", runs.Load())
	}
	if s.Pending("gear:186|6|0") {
		t.Error("Pending() = true after task finished")
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	s := New(Config{Workers: 1, QueueSize: 1}, testLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}
	noop := func(ctx context.Context) error { return nil }

	if err := s.Submit("running", blocking); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := s.Submit("queued", noop); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := s.Submit("overflow", noop); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}

	close(release)
	s.Close(context.Background())
}

func TestSubmit_AfterClose(t *testing.T) {
	s := New(Config{}, testLogger())
	s.Close(context.Background())

	err := s.Submit("a", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() error = %v, want ErrClosed", err)
	}
}

func TestTask_TimeoutAndFailureContained(t *testing.T) {
	s := New(Config{Workers: 1, Timeout: 20 * time.Millisecond}, testLogger())

	var sawDeadline atomic.Bool
	s.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	s.Submit("panics", func(ctx context.Context) error {
		panic("boom")
	})

	var ran atomic.Bool
	s.Submit("after", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	s.Close(context.Background())

	if !sawDeadline.Load() {
		t.Error("task did not observe its deadline")
	}
	if !ran.Load() {
		t.Error("worker stopped after a failing task")
	}
}
