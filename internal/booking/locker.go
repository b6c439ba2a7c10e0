package booking

import (
	"context"
	"sync"
	"time"
)

// Locker serializes the check-then-insert section of booking admission per
// parking. Distinct parkings never contend; within one parking, acquisition
// waits at most the given timeout so a stuck request surfaces
// ErrConcurrencyTimeout instead of blocking indefinitely.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{} // holds one token when the lock is free
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*lockEntry)}
}

// Acquire takes the per-key lock, waiting up to timeout. The returned release
// function must be called exactly once; releasing also drops the entry once
// no other waiter references it, so idle keys do not accumulate.
func (l *Locker) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		entry.ch <- struct{}{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-entry.ch:
		return func() {
			entry.ch <- struct{}{}
			l.unref(key, entry)
		}, nil
	case <-timer.C:
		l.unref(key, entry)
		return nil, ErrConcurrencyTimeout
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, ErrConcurrencyTimeout
	}
}

func (l *Locker) unref(key string, entry *lockEntry) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
