package fingerprint

import "sync"

// refMutex is a mutex plus the count of goroutines currently holding or
// waiting to acquire it, so the owning map can reclaim it once unused.
type refMutex struct {
	mu   sync.Mutex
	refs int
}

// Mutex is a reference-counted keyed lock: fp -> mutex, implementing the
// at-most-one-build guarantee of §4.2. Concurrent requests for the same
// fingerprint block until the first completes; entries are released once
// no caller holds them, so the map does not grow unbounded over a long
// process lifetime.
type Mutex struct {
	mapMu sync.Mutex
	locks map[string]*refMutex
}

// NewMutex creates an empty keyed-lock map.
func NewMutex() *Mutex {
	return &Mutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for fp, creating it on first use. The returned
// release function must be called exactly once to unlock and, if no other
// caller is waiting, reclaim the entry.
func (m *Mutex) Lock(fp string) (release func()) {
	m.mapMu.Lock()
	rm, ok := m.locks[fp]
	if !ok {
		rm = &refMutex{}
		m.locks[fp] = rm
	}
	rm.refs++
	m.mapMu.Unlock()

	rm.mu.Lock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		rm.mu.Unlock()

		m.mapMu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(m.locks, fp)
		}
		m.mapMu.Unlock()
	}
}

// Len reports how many fingerprints currently have live lock entries,
// exposed for tests asserting the map does not leak.
func (m *Mutex) Len() int {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	return len(m.locks)
}
