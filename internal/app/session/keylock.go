package session

import (
	"sync"

	"github.com/dmendiola/wagate/internal/domain"
)

// PerKeyLock serializes create/disconnect per uid without any cross-uid
// contention. Entries are reference counted so the map does not grow with
// every uid ever seen.
type PerKeyLock struct {
	mu    sync.Mutex
	locks map[domain.UID]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewPerKeyLock() *PerKeyLock {
	return &PerKeyLock{
		locks: make(map[domain.UID]*keyLockEntry),
	}
}

// Acquire blocks until no other caller holds the lock for uid. The lock is
// not reentrant.
func (l *PerKeyLock) Acquire(uid domain.UID) {
	l.mu.Lock()
	e, ok := l.locks[uid]
	if !ok {
		e = &keyLockEntry{}
		l.locks[uid] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

func (l *PerKeyLock) Release(uid domain.UID) {
	l.mu.Lock()
	e, ok := l.locks[uid]
	if !ok {
		l.mu.Unlock()
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, uid)
	}
	l.mu.Unlock()

	e.mu.Unlock()
}
