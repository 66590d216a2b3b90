package services

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLock hands out one exclusive slot per key. Entries are reference
// counted and dropped once no goroutine holds or waits for them.
type keyedLock struct {
	mu      sync.Mutex
	entries map[string]*keyedLockEntry
}

type keyedLockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[string]*keyedLockEntry)}
}

// Lock waits until the key is free or ctx is done. On success it returns the
// matching unlock func; on ctx expiry it returns ctx.Err() and holds nothing.
func (l *keyedLock) Lock(ctx context.Context, key string) (func(), error) {
	ctx = ensureContext(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &keyedLockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.release(key, entry)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.release(key, entry)
		})
	}, nil
}

func (l *keyedLock) release(key string, entry *keyedLockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *keyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
