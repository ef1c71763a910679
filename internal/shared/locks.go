package shared

import (
	"fmt"
	"sync"
)

// RecordLockKey builds the lock name for an expense record.
func RecordLockKey(recordID int64) string {
	return fmt.Sprintf("expense:record:%d:lock", recordID)
}

// RecordLocks serializes work per key. Entries are dropped once no holder or
// waiter remains, so the map only grows with concurrently touched keys.
type RecordLocks struct {
	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// NewRecordLocks constructs an empty lock table.
func NewRecordLocks() *RecordLocks {
	return &RecordLocks{locks: make(map[string]*recordLock)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (l *RecordLocks) Lock(key string) func() {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &recordLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			lock.mu.Unlock()
			l.mu.Lock()
			lock.refs--
			if lock.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many keys are held or awaited.
func (l *RecordLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
