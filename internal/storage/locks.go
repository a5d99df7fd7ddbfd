package storage

import (
	"context"
	"sync"
)

// userLocks serialises mutations per user so that two writers can never both
// observe the same account set before either commits.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock is a one-slot semaphore so that waiters can give up on ctx.
type userLock struct {
	slot chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock blocks until userID's lock is held or ctx is done, and returns the
// release func. Entries are dropped once nobody holds or waits on them.
func (l *userLocks) lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{slot: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		l.release(userID, ul)
		return nil, err
	}
	select {
	case ul.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, ul)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ul.slot
			l.release(userID, ul)
		})
	}, nil
}

func (l *userLocks) release(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
