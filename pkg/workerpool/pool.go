// Package workerpool runs connection loops and timer callbacks on a fixed
// number of goroutines.
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/marmos91/honeyd/internal/logger"
)

// DefaultSize is the number of workers used when none is configured.
const DefaultSize = 4

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("worker pool stopped")

// Pool is a fixed set of workers pulling tasks from one shared queue. Any
// worker may pick up any task.
type Pool struct {
	size  int
	tasks chan func()

	stopOnce  sync.Once
	startOnce sync.Once
	stopping  chan struct{}
	wg        sync.WaitGroup
}

// New creates a pool of size workers; size <= 0 means DefaultSize. Workers
// are started by Start.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		size:     size,
		tasks:    make(chan func()),
		stopping: make(chan struct{}),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Start launches the workers. Calling it again has no effect.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(p.size)
		for i := 0; i < p.size; i++ {
			go p.worker(i)
		}
		logger.Debug("Worker pool started with %d workers", p.size)
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopping:
			return
		case task := <-p.tasks:
			p.run(id, task)
		}
	}
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in worker %d: %v\n%s", id, r, debug.Stack())
		}
	}()
	task()
}

// Submit hands task to the next free worker. It blocks until a worker
// takes it, ctx is done, or the pool stops.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case <-p.stopping:
		return ErrStopped
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopping:
		return ErrStopped
	}
}

// Stop refuses new tasks and waits for every worker to finish the task it
// is running. Tasks that were never picked up are dropped. Stop is
// idempotent; it must not be called from inside a task.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopping)
	})
	p.wg.Wait()
}
