// Package caching provides in-process coordination primitives shared by the
// application services.
package caching

import "sync"

// UserLocks hands out one mutex per key so that work for the same user is
// serialized while different users proceed in parallel. Entries are removed
// once no goroutine holds or waits on them.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewUserLocks creates a new instance of UserLocks.
func NewUserLocks() *UserLocks {
	return &UserLocks{
		locks: make(map[string]*userLock),
	}
}

// Lock blocks until the lock for key is held.
func (l *UserLocks) Lock(key string) {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		entry = &userLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// TryLock acquires the lock for key only if nobody holds or waits on it.
func (l *UserLocks) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.locks[key]; exists {
		return false
	}
	entry := &userLock{refs: 1}
	entry.mu.Lock()
	l.locks[key] = entry
	return true
}

// Unlock releases the lock for key. It must be paired with Lock or a
// successful TryLock.
func (l *UserLocks) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		panic("caching: unlock of unlocked key " + key)
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	entry.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (l *UserLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
