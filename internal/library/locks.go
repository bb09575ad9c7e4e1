package library

import (
	"slices"
	"sync"
)

// titleLocks hands out one mutex per title. Entries are dropped once no
// goroutine holds or waits for them.
type titleLocks struct {
	mutex sync.Mutex
	locks map[string]*titleLock
}

type titleLock struct {
	sync.Mutex
	refs int
}

// Lock acquires the locks of every given title in a fixed order and returns
// the matching unlock function.
func (tl *titleLocks) Lock(titles ...string) func() {
	keys := slices.Clone(titles)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*titleLock, 0, len(keys))
	for _, key := range keys {
		lock := tl.acquire(key)
		lock.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			tl.release(keys[i])
		}
	}
}

func (tl *titleLocks) acquire(key string) *titleLock {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()

	if tl.locks == nil {
		tl.locks = make(map[string]*titleLock)
	}
	lock, ok := tl.locks[key]
	if !ok {
		lock = &titleLock{}
		tl.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (tl *titleLocks) release(key string) {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()

	lock := tl.locks[key]
	lock.refs--
	if lock.refs == 0 {
		delete(tl.locks, key)
	}
}
