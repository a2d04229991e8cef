// Package workerpool implements an elastic worker pool: goroutines are
// spawned on demand up to a configurable maximum, idle workers are reaped,
// and shutdown is cooperative (reject new work, drain the queue, join
// workers with a timeout).
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls pool sizing and idle-worker lifetime.
type Config struct {
	// MaxWorkers bounds the number of concurrently running goroutines.
	MaxWorkers int
	// IdleTimeout is how long an idle worker waits for new work before
	// exiting. Zero disables reaping (workers live for the pool's life).
	IdleTimeout time.Duration
	// QueueSize bounds the pending-task channel. Submit blocks once full
	// rather than dropping work (caller-runs fallback is left to the
	// caller via Submit's blocking behavior).
	QueueSize int
}

// DefaultConfig is a reasonable default for a single-process dispatcher.
func DefaultConfig() Config {
	return Config{MaxWorkers: 64, IdleTimeout: 30 * time.Second, QueueSize: 1024}
}

// Status is a point-in-time snapshot of pool activity.
type Status struct {
	Running       bool
	QueueLength   int
	Scheduled     int64
	Completed     int64
	ActiveWorkers int
}

// Pool is an elastic goroutine pool. Submit never blocks the caller on the
// task itself, only on enqueueing it.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	running bool
	workers int
	tasks   chan func()
	done    chan struct{}

	scheduled atomic.Int64
	completed atomic.Int64
}

// New creates a started pool.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	p := &Pool{
		cfg:     cfg,
		running: true,
		tasks:   make(chan func(), cfg.QueueSize),
		done:    make(chan struct{}),
	}
	return p
}

// Submit enqueues a task for execution. While fewer than MaxWorkers are
// running it spawns a new worker for the task, without first handing it to
// an idle worker; once MaxWorkers are running, tasks simply queue. Submit
// returns false if the pool has already been shut down.
func (p *Pool) Submit(task func()) bool {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return false
	}
	p.scheduled.Add(1)
	spawn := p.workers < p.cfg.MaxWorkers
	if spawn {
		p.workers++
	}
	p.mu.Unlock()

	if spawn {
		go p.runWorker(task)
		return true
	}

	select {
	case p.tasks <- task:
		return true
	case <-p.done:
		return false
	}
}

func (p *Pool) runWorker(first func()) {
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
	}()

	p.execute(first)

	idle := p.cfg.IdleTimeout
	for {
		if idle <= 0 {
			select {
			case task, ok := <-p.tasks:
				if !ok {
					return
				}
				p.execute(task)
			case <-p.done:
				p.drainRemaining()
				return
			}
			continue
		}

		timer := time.NewTimer(idle)
		select {
		case task, ok := <-p.tasks:
			timer.Stop()
			if !ok {
				return
			}
			p.execute(task)
		case <-p.done:
			timer.Stop()
			p.drainRemaining()
			return
		case <-timer.C:
			return // idle timeout: reap this worker
		}
	}
}

func (p *Pool) drainRemaining() {
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(task)
		default:
			return
		}
	}
}

func (p *Pool) execute(task func()) {
	defer p.completed.Add(1)
	// A panicking task must not take the worker goroutine down with it:
	// that would drop every other task still queued behind it and shrink
	// the pool out from under the caller. Callers that care about the
	// panic (recording it, converting it to an error) should recover it
	// themselves inside task; this is the pool's own backstop.
	defer func() {
		recover()
	}()
	task()
}

// Status reports current pool activity.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:       p.running,
		QueueLength:   len(p.tasks),
		Scheduled:     p.scheduled.Load(),
		Completed:     p.completed.Load(),
		ActiveWorkers: p.workers,
	}
}

// Shutdown stops accepting new work and waits for in-flight and queued
// tasks to drain and every worker to exit, until ctx is done; it returns
// ctx.Err() if ctx ends first. A second call returns nil immediately.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		for {
			p.mu.Lock()
			n := p.workers
			p.mu.Unlock()
			if n == 0 {
				close(waitDone)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	select {
	case <-waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
