package mirror

import "sync"

// lockArena hands out one mutex per mirror ID, created on first use.
// Entries are discarded once a mirror is deleted.
type lockArena struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func newLockArena() *lockArena {
	return &lockArena{locks: make(map[string]*sync.Mutex)}
}

// acquire blocks until the mirror's mutex is held and returns its release func.
func (a *lockArena) acquire(id string) func() {
	m := a.loadOrCreate(id)
	m.Lock()
	return m.Unlock
}

func (a *lockArena) loadOrCreate(id string) *sync.Mutex {
	a.mu.RLock()
	m, ok := a.locks[id]
	a.mu.RUnlock()
	if ok {
		return m
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Another goroutine may have created it between RUnlock and Lock.
	if m, ok := a.locks[id]; ok {
		return m
	}
	m = &sync.Mutex{}
	a.locks[id] = m
	return m
}

// discard drops the mirror's entry. Goroutines already waiting on the old
// mutex still acquire it and find the mirror gone.
func (a *lockArena) discard(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.locks, id)
}

func (a *lockArena) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.locks)
}
