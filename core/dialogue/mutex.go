package dialogue

import "sync"

// keyedMutex serializes work per user so that duplicate deliveries of the
// same event cannot interleave inside one process. Entries are reference
// counted and removed once idle.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[int64]*userLock{}}
}

// lock acquires the per-user mutex and returns its release func.
func (k *keyedMutex) lock(userID int64) func() {
	k.mu.Lock()
	l, ok := k.locks[userID]
	if !ok {
		l = &userLock{}
		k.locks[userID] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, userID)
		}
		k.mu.Unlock()
	}
}
