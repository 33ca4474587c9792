package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/ocrworker/internal/models"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	var calls int
	err := Retry(context.Background(), fastPolicy(3), "page 1", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	var calls int
	transient := errors.New("connection reset")
	err := Retry(context.Background(), fastPolicy(3), "page 2", func(context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Retry() error = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, transient) {
		t.Errorf("last error not wrapped: %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 1 attempt + 3 retries", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	var calls int
	err := Retry(context.Background(), fastPolicy(3), "page 3", func(context.Context) error {
		calls++
		return &models.FormatError{Path: "p.pdf", Reason: "two pages"}
	})
	if !errors.Is(err, models.ErrFormat) {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, InitialBackoff: time.Hour}
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, policy, "slow", func(context.Context) error { return errors.New("fail") })
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Retry() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Retry did not return after cancel")
	}
}

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(context.Background(), 2, 10)
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		err := p.Submit(Job{Name: "job", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	p.Close()
	if got := ran.Load(); got != 5 {
		t.Errorf("ran = %d, want 5", got)
	}
	if err := p.Submit(Job{Name: "late", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Close error = %v", err)
	}
}

func TestPoolQueueFull(t *testing.T) {
	block := make(chan struct{})
	p := NewPool(context.Background(), 1, 1)
	defer func() {
		close(block)
		p.Close()
	}()

	started := make(chan struct{}, 1)
	wait := func(context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}
	if err := p.Submit(Job{Name: "running", Run: wait}); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := p.Submit(Job{Name: "queued", Run: wait}); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(Job{Name: "overflow", Run: wait}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}
}
