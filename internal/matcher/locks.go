package matcher

import "sync"

// rideLocks serializes mutating operations per ride ID. Entries are
// reference-counted so the map does not grow with ride history.
type rideLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newRideLocks() *rideLocks {
	return &rideLocks{entries: make(map[string]*lockEntry)}
}

func (l *rideLocks) lock(rideID string) {
	l.mu.Lock()
	e, ok := l.entries[rideID]
	if !ok {
		e = &lockEntry{}
		l.entries[rideID] = e
	}
	e.refs++
	l.mu.Unlock()
	e.mu.Lock()
}

func (l *rideLocks) unlock(rideID string) {
	l.mu.Lock()
	e := l.entries[rideID]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, rideID)
	}
	l.mu.Unlock()
	e.mu.Unlock()
}
