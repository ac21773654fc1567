// Package locks provides per-key advisory locks with automatic expiry.
// A holder that crashes or forgets to release does not wedge the key
// forever: entries older than the timeout are stolen by the next caller.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrTimeout = errors.New("lock acquisition timed out")

const pollInterval = 50 * time.Millisecond

// Table tracks held locks keyed by string. All methods are safe for
// concurrent use.
type Table struct {
	mu      sync.Mutex
	held    map[string]time.Time
	timeout time.Duration

	now func() time.Time
}

func NewTable(timeout time.Duration) *Table {
	return &Table{
		held:    make(map[string]time.Time),
		timeout: timeout,
		now:     time.Now,
	}
}

// TryAcquire takes the lock for key if it is free or expired. Returns
// false when another holder still owns it.
func (t *Table) TryAcquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if at, ok := t.held[key]; ok && now.Sub(at) < t.timeout {
		return false
	}
	t.held[key] = now
	return true
}

// Acquire blocks until the lock for key is taken, the wait elapses, or
// ctx is done. Polling is coarse; these locks guard user-facing
// operations, not hot paths.
func (t *Table) Acquire(ctx context.Context, key string, wait time.Duration) error {
	deadline := t.now().Add(wait)
	for {
		if t.TryAcquire(key) {
			return nil
		}
		if !t.now().Before(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (t *Table) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, key)
}

// Held reports whether key is currently locked and unexpired.
func (t *Table) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.held[key]
	return ok && t.now().Sub(at) < t.timeout
}
