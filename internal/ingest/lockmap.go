package ingest

import "sync"

// lockMap provides a mutex per document id so the "no active job" check and
// the job insert run as one critical section. Entries are reference-counted
// and removed when the last holder unlocks, so the map does not grow with
// the document table.
type lockMap struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[string]*docLock)}
}

// Lock acquires the lock for the given key and returns its unlock function.
func (m *lockMap) Lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &docLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
