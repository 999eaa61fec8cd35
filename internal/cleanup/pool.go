package cleanup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/rs/zerolog"
)

type TaskFunc func(ctx context.Context) error

type task struct {
	kind string
	name string
	run  TaskFunc
}

type Options struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	TaskTimeout time.Duration
}

// Pool runs fire-and-forget housekeeping such as container and image removal.
// It keeps MinWorkers alive, grows up to MaxWorkers while a backlog exists and
// lets extra workers exit after IdleTimeout. Task errors are logged and
// counted, never returned to the submitter.
type Pool struct {
	opts    Options
	tasks   chan task
	workers atomic.Int32
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	logger  *zerolog.Logger
	metrics *metrics.Registry
}

func NewPool(opts Options, logger *zerolog.Logger, m *metrics.Registry) *Pool {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.MinWorkers < 0 {
		opts.MinWorkers = 0
	}
	if opts.MinWorkers > opts.MaxWorkers {
		opts.MinWorkers = opts.MaxWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}

	p := &Pool{
		opts:    opts,
		tasks:   make(chan task, opts.QueueSize),
		logger:  logger,
		metrics: m,
	}
	for i := 0; i < opts.MinWorkers; i++ {
		p.grow()
	}
	return p
}

// Submit queues fn and returns immediately. It reports false when the task
// was dropped because the pool is closed or saturated.
func (p *Pool) Submit(kind, name string, fn TaskFunc) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t := task{kind: kind, name: name, run: fn}
	if p.closed {
		p.drop(t, "pool closed")
		return false
	}

	select {
	case p.tasks <- t:
		if len(p.tasks) > 0 {
			p.grow()
		}
		return true
	default:
	}

	if p.grow() {
		p.tasks <- t
		return true
	}
	p.drop(t, "queue full")
	return false
}

func (p *Pool) Workers() int {
	return int(p.workers.Load())
}

func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) grow() bool {
	for {
		n := p.workers.Load()
		if int(n) >= p.opts.MaxWorkers {
			return false
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.metrics.CleanupWorkers.Inc()
			p.wg.Add(1)
			go p.work()
			return true
		}
	}
}

func (p *Pool) retire() bool {
	for {
		n := p.workers.Load()
		if int(n) <= p.opts.MinWorkers {
			return false
		}
		if p.workers.CompareAndSwap(n, n-1) {
			p.metrics.CleanupWorkers.Dec()
			return true
		}
	}
}

func (p *Pool) work() {
	defer p.wg.Done()

	idle := time.NewTimer(p.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case t, ok := <-p.tasks:
			if !ok {
				p.workers.Add(-1)
				p.metrics.CleanupWorkers.Dec()
				return
			}
			p.execute(t)
			idle.Reset(p.opts.IdleTimeout)
		case <-idle.C:
			if p.retire() {
				// A task queued while this worker was retiring saw a full pool
				// and did not grow it.
				if len(p.tasks) > 0 {
					p.grow()
				}
				return
			}
			idle.Reset(p.opts.IdleTimeout)
		}
	}
}

func (p *Pool) execute(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.TaskTimeout)
	defer cancel()

	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			p.logger.Error().Interface("panic", r).Str("kind", t.kind).Str("target", t.name).Msg("cleanup task panicked")
		}
		p.metrics.CleanupTasks.WithLabelValues(t.kind, outcome).Inc()
	}()

	if err := t.run(ctx); err != nil {
		outcome = "failed"
		p.logger.Warn().Err(err).Str("kind", t.kind).Str("target", t.name).Msg("cleanup task failed")
		return
	}
	p.logger.Debug().Str("kind", t.kind).Str("target", t.name).Msg("cleanup task done")
}

func (p *Pool) drop(t task, reason string) {
	p.metrics.CleanupTasks.WithLabelValues(t.kind, "dropped").Inc()
	p.logger.Warn().Str("kind", t.kind).Str("target", t.name).Str("reason", reason).Msg("cleanup task dropped")
}
