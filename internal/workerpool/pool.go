// Package workerpool runs submitted jobs on a fixed number of goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrFull is returned by Submit when the queue has no free slot.
	ErrFull = errors.New("worker pool queue full")

	// ErrClosed is returned by Submit after Stop.
	ErrClosed = errors.New("worker pool closed")
)

// Job is a unit of work.
type Job func(ctx context.Context) error

// Pool manages a fixed set of workers reading from a bounded queue.
type Pool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool

	activeCount atomic.Int32
	totalJobs   atomic.Int64
	failedJobs  atomic.Int64

	// OnError receives job errors and recovered panics. Optional.
	OnError func(err error)
}

// New starts a pool with the given number of workers and queue capacity.
func New(ctx context.Context, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}
	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		workers: workers,
		jobs:    make(chan Job, queueSize),
		ctx:     poolCtx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		p.activeCount.Add(1)
		p.totalJobs.Add(1)

		if err := p.run(job); err != nil {
			p.failedJobs.Add(1)
			if p.OnError != nil {
				p.OnError(err)
			}
		}

		p.activeCount.Add(-1)
	}
}

func (p *Pool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(p.ctx)
}

// Submit queues a job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

// Stop refuses new jobs, lets queued jobs finish and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Shutdown cancels the context passed to running jobs, then stops the pool.
func (p *Pool) Shutdown() {
	p.cancel()
	p.Stop()
}

// Stats contains pool statistics.
type Stats struct {
	TotalWorkers  int
	ActiveWorkers int32
	Queued        int
	TotalJobs     int64
	FailedJobs    int64
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		TotalWorkers:  p.workers,
		ActiveWorkers: p.activeCount.Load(),
		Queued:        len(p.jobs),
		TotalJobs:     p.totalJobs.Load(),
		FailedJobs:    p.failedJobs.Load(),
	}
}
