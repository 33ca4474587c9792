package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrQueueFull  = errors.New("job queue is full")
	ErrPoolClosed = errors.New("pool is closed")
)

// Job is a unit of asynchronous work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool executes submitted jobs on a fixed number of workers. Submit never
// blocks; the caller learns the outcome only through the job itself.
type Pool struct {
	ctx  context.Context
	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers that run jobs with ctx until Close.
func NewPool(ctx context.Context, workers, queueSize int) *Pool {
	p := &Pool{ctx: ctx, jobs: make(chan Job, queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := job.Run(p.ctx); err != nil {
			slog.Error("Background job failed.", "job", job.Name, "error", err)
			continue
		}
		slog.Info("Background job finished.", "job", job.Name)
	}
}

func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
