package traversal

import "sync"

// tabLocks hands out one mutex per tab. Entries are refcounted and dropped
// when the last holder unlocks, so idle tabs cost nothing.
type tabLocks struct {
	mu    sync.Mutex
	locks map[string]*tabLock
}

type tabLock struct {
	mu   sync.Mutex
	refs int
}

func newTabLocks() *tabLocks {
	return &tabLocks{locks: make(map[string]*tabLock)}
}

// lock blocks until the caller owns tabID and returns the release func.
func (l *tabLocks) lock(tabID string) func() {
	l.mu.Lock()
	tl, ok := l.locks[tabID]
	if !ok {
		tl = &tabLock{}
		l.locks[tabID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tabID)
		}
		l.mu.Unlock()
	}
}

func (l *tabLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
