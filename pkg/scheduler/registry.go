// Package scheduler runs named, replaceable deferred callbacks.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/honeyd/internal/logger"
	"github.com/marmos91/honeyd/pkg/metrics"
)

// ErrClosed is returned by RunLater after Stop.
var ErrClosed = errors.New("scheduler stopped")

// Executor runs fired callbacks. The worker pool satisfies it.
type Executor interface {
	Submit(ctx context.Context, task func()) error
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Registry maps a key to at most one pending callback.
//
// Registering a key that is already pending replaces it: the old timer is
// stopped and, in case it already fired and is waiting for the lock, its
// generation no longer matches so the old callback is discarded.
//
// The registry has its own lock and never touches the RPC guard.
type Registry struct {
	exec    Executor
	metrics metrics.RPCMetrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	closed  bool
}

// New creates a registry whose callbacks run on exec.
func New(exec Executor, m metrics.RPCMetrics) *Registry {
	if m == nil {
		m = metrics.NewNoopRPCMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		exec:    exec,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// RunLater schedules fn to run after delay under key, replacing any
// callback still pending under the same key.
func (r *Registry) RunLater(key string, delay time.Duration, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if old, ok := r.entries[key]; ok {
		old.timer.Stop()
		delete(r.entries, key)
	}

	r.gen++
	gen := r.gen
	e := &entry{gen: gen}
	// fire needs r.mu, so it cannot observe the entry before it is stored.
	e.timer = time.AfterFunc(delay, func() { r.fire(key, gen, fn) })
	r.entries[key] = e

	logger.Debug("Scheduled task %q in %s", key, delay)
	return nil
}

func (r *Registry) fire(key string, gen uint64, fn func()) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.gen != gen || r.closed {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	r.mu.Unlock()

	r.metrics.RecordScheduledTask(key)
	if err := r.exec.Submit(r.ctx, fn); err != nil {
		logger.Debug("Scheduled task %q dropped: %v", key, err)
	}
}

// Cancel removes the pending callback under key, reporting whether one
// existed.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, key)
	return true
}

// Pending returns the number of callbacks waiting to fire.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop cancels every pending callback and rejects new ones. Callbacks
// already handed to the executor are unaffected.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	n := len(r.entries)
	for key, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, key)
	}
	r.mu.Unlock()

	r.cancel()
	logger.Debug("Scheduler stopped, %d pending task(s) cancelled", n)
}
