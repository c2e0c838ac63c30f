// internal/orchestrator/locks.go
package orchestrator

import "sync"

// unitLocks hands out one advisory lock per unit. Operations on different
// units never share a lock.
type unitLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUnitLocks() *unitLocks {
	return &unitLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *unitLocks) get(unitID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[unitID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[unitID] = lock
	}
	return lock
}

// tryAcquire takes the unit's lock without blocking. The returned release
// function is nil when another operation holds it.
func (l *unitLocks) tryAcquire(unitID string) func() {
	lock := l.get(unitID)
	if !lock.TryLock() {
		return nil
	}
	return lock.Unlock
}
