// internal/room/locks.go
package room

import "sync"

// roomLocks hands out one mutex per room code. Entries are reference counted and
// dropped once nobody holds or waits on them, so the table only grows with live traffic.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// lock blocks until the caller owns code and returns the matching unlock.
func (l *roomLocks) lock(code string) func() {
	l.mu.Lock()
	rl, ok := l.locks[code]
	if !ok {
		rl = &roomLock{}
		l.locks[code] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, code)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
