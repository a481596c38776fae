// Package workerpool provides a bounded goroutine pool with future-style
// results. Any call into a naturally blocking store driver goes through a
// pool so the tick loops are never stalled past their budget.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work returning a value.
type Task func(ctx context.Context) (interface{}, error)

type outcome struct {
	value interface{}
	err   error
}

// Future is the pending result of a submitted task.
type Future struct {
	ch chan outcome
}

// Wait blocks until the task finishes or the context is done.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-f.ch:
		return out.value, out.err
	}
}

type submission struct {
	ctx    context.Context
	fn     Task
	future *Future
}

// Pool is a bounded worker pool.
type Pool struct {
	name   string
	tasks  chan submission
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger *zap.Logger
}

// New starts a pool with the given number of workers and queue capacity.
func New(name string, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		name:   name,
		tasks:  make(chan submission, queueSize),
		stop:   make(chan struct{}),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Info("worker pool started",
		zap.String("pool", name), zap.Int("workers", workers), zap.Int("queue", queueSize))
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case sub := <-p.tasks:
			sub.future.ch <- p.run(sub)
		}
	}
}

func (p *Pool) run(sub submission) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("task panicked: %v", r)}
			p.logger.Error("worker task panic", zap.String("pool", p.name), zap.Any("panic", r))
		}
	}()
	if sub.ctx.Err() != nil {
		return outcome{err: sub.ctx.Err()}
	}
	v, err := sub.fn(sub.ctx)
	return outcome{value: v, err: err}
}

// Submit enqueues a task. It fails when the pool is stopped or the queue is
// full, so a backed-up store surfaces as an error instead of blocking the
// caller's tick.
func (p *Pool) Submit(ctx context.Context, fn Task) (*Future, error) {
	f := &Future{ch: make(chan outcome, 1)}
	sub := submission{ctx: ctx, fn: fn, future: f}

	select {
	case <-p.stop:
		return nil, fmt.Errorf("worker pool %q is stopped", p.name)
	default:
	}

	select {
	case p.tasks <- sub:
		return f, nil
	default:
		return nil, fmt.Errorf("worker pool %q queue is full", p.name)
	}
}

// Do submits fn and waits for its result, combining Submit and Future.Wait.
func (p *Pool) Do(ctx context.Context, fn Task) (interface{}, error) {
	f, err := p.Submit(ctx, fn)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// Stop shuts the pool down, waiting up to timeout for in-flight tasks.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.once.Do(func() {
		close(p.stop)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("worker pool stopped", zap.String("pool", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q stop timed out after %v", p.name, timeout)
		}
	})
	return err
}
