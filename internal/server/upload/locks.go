package upload

import "sync"

// sessionLocks orders chunk commits against the assembly hand-off of one session.
// Commits share the read side, the open->assembling transition and expiry take the write side.
// Entries live only while someone holds or waits for them, and no lock is held across a body read.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.RWMutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock takes the write side for id and returns its release
func (l *sessionLocks) lock(id string) func() {
	lk := l.acquire(id)
	lk.Lock()
	return func() {
		lk.Unlock()
		l.release(id, lk)
	}
}

// rlock takes the read side for id and returns its release
func (l *sessionLocks) rlock(id string) func() {
	lk := l.acquire(id)
	lk.RLock()
	return func() {
		lk.RUnlock()
		l.release(id, lk)
	}
}

// held reports how many sessions currently have a lock entry
func (l *sessionLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *sessionLocks) acquire(id string) *sessionLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[id]
	if !ok {
		lk = &sessionLock{}
		l.locks[id] = lk
	}
	lk.refs++
	return lk
}

func (l *sessionLocks) release(id string, lk *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}
