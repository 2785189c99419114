package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/breeze-rmm/deskcap/internal/logging"
)

var log = logging.L("workerpool")

// ErrStopped is returned by SubmitWait once the pool no longer accepts work.
var ErrStopped = errors.New("worker pool stopped")

// Task is a unit of work. ctx is cancelled once the pool has drained or
// given up draining.
type Task func(ctx context.Context) error

// Stats counts finished tasks.
type Stats struct {
	Completed int64
	Failed    int64
}

// Pool is a bounded goroutine pool with a fixed-size task queue. Task
// failures are counted and the first one is kept for Shutdown.
type Pool struct {
	maxWorkers int
	queue      chan Task
	wg         sync.WaitGroup
	accepting  atomic.Bool
	stopOnce   sync.Once
	closeOnce  sync.Once
	stopChan   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	completed atomic.Int64
	failed    atomic.Int64
	errMu     sync.Mutex
	firstErr  error
}

// New creates a pool with maxWorkers goroutines and a task queue of queueSize.
func New(maxWorkers, queueSize int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		maxWorkers: maxWorkers,
		queue:      make(chan Task, queueSize),
		stopChan:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.accepting.Store(true)

	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "workers", maxWorkers, "queueSize", queueSize)
	return p
}

// Context is cancelled when the pool finishes draining.
func (p *Pool) Context() context.Context { return p.ctx }

// Submit enqueues a task. Returns false if the pool is stopped or the queue is full.
// wg.Add is called here (before enqueue) to prevent a race with Drain.
func (p *Pool) Submit(task Task) bool {
	if !p.accepting.Load() {
		return false
	}

	p.wg.Add(1)
	select {
	case p.queue <- task:
		return true
	default:
		p.wg.Done() // undo the Add since task was not enqueued
		log.Warn("worker pool queue full, task rejected")
		return false
	}
}

// SubmitWait enqueues a task, waiting for queue space until ctx is done.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	if !p.accepting.Load() {
		return ErrStopped
	}

	p.wg.Add(1)
	select {
	case p.queue <- task:
		return nil
	case <-p.stopChan:
		p.wg.Done()
		return ErrStopped
	case <-ctx.Done():
		p.wg.Done()
		return ctx.Err()
	}
}

// StopAccepting prevents new tasks from being submitted.
func (p *Pool) StopAccepting() {
	p.accepting.Store(false)
}

// Drain waits for all in-flight and queued tasks to complete, respecting the
// context deadline, and reports ctx.Err() if it gave up. Drain stops
// accepting on its own. After Drain returns, the queue channel is closed so
// worker goroutines exit.
func (p *Pool) Drain(ctx context.Context) error {
	p.StopAccepting()
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		log.Debug("worker pool drained", "completed", p.completed.Load(), "failed", p.failed.Load())
	case <-ctx.Done():
		err = ctx.Err()
		log.Warn("worker pool drain timed out", "error", err)
	}
	p.cancel()

	// Close queue so worker goroutines exit and are not leaked. Senders in
	// SubmitWait bail out on stopChan, so none can race this close once
	// their wg slot is released.
	if err == nil {
		p.closeOnce.Do(func() {
			close(p.queue)
		})
	}
	return err
}

// Shutdown drains the pool and returns the drain error, or else the first
// task failure.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.Drain(ctx); err != nil {
		return err
	}
	return p.Err()
}

// Err returns the first task failure seen so far.
func (p *Pool) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.firstErr
}

func (p *Pool) Stats() Stats {
	return Stats{Completed: p.completed.Load(), Failed: p.failed.Load()}
}

func (p *Pool) worker() {
	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.runTask(task)
		case <-p.stopChan:
			// Drain remaining queued tasks
			for {
				select {
				case task, ok := <-p.queue:
					if !ok {
						return
					}
					p.runTask(task)
				default:
					return
				}
			}
		}
	}
}

// runTask executes a single task with panic recovery. wg.Done is called here
// to match the wg.Add in Submit.
func (p *Pool) runTask(task Task) {
	defer p.wg.Done()
	var err error
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
		p.finish(err)
	}()
	err = task(p.ctx)
}

func (p *Pool) finish(err error) {
	if err == nil {
		p.completed.Add(1)
		return
	}
	p.failed.Add(1)
	p.errMu.Lock()
	if p.firstErr == nil {
		p.firstErr = err
	}
	p.errMu.Unlock()
}
