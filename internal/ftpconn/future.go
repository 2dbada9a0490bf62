// Package ftpconn implements the per-session connection state machine
// (spec §4.8, Design Note "Awaitable slots for connection state"): a
// map from well-known slot names to single-shot completion handles, and
// the composable precondition gates command handlers run before acting.
package ftpconn

import (
	"context"
	"sync"
)

// Future is a single-shot value slot. Get suspends the caller until Set
// is called (or the context is done); Set overwrites any prior value
// and wakes every waiter. Delete resets the slot to empty.
type Future struct {
	mu    sync.Mutex
	ready chan struct{}
	value any
	set   bool
}

// NewFuture returns an empty, unset Future.
func NewFuture() *Future {
	return &Future{ready: make(chan struct{})}
}

// Get blocks until the slot is set or ctx is done. ok is false only on
// context cancellation.
func (f *Future) Get(ctx context.Context) (value any, ok bool) {
	f.mu.Lock()
	ch := f.ready
	if f.set {
		v := f.value
		f.mu.Unlock()
		return v, true
	}
	f.mu.Unlock()

	select {
	case <-ch:
		f.mu.Lock()
		v, set := f.value, f.set
		f.mu.Unlock()
		return v, set
	case <-ctx.Done():
		return nil, false
	}
}

// Peek returns the current value without blocking.
func (f *Future) Peek() (value any, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.set
}

// Set fulfils (or replaces) the slot's value, waking every waiter.
func (f *Future) Set(value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = value
	if !f.set {
		f.set = true
		close(f.ready)
		return
	}
	// Already set: the ready channel is already closed and no Get is
	// waiting on it, so only the value is replaced; later Get and Peek
	// calls return the new value immediately.
	f.set = true
}

// Delete clears the slot back to empty so a future Get suspends again.
func (f *Future) Delete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = nil
	f.set = false
	f.ready = make(chan struct{})
}
