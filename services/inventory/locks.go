package inventory

import (
	"context"
	"sync"
)

// identityLocks serializes work per sn inside one process. Unrelated serials
// never contend. Entries are dropped once nobody holds or waits for them.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	ch   chan struct{}
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*identityLock)}
}

// Lock blocks until sn is free or ctx is done.
func (l *identityLocks) Lock(ctx context.Context, sn string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[sn]
	if !ok {
		lk = &identityLock{ch: make(chan struct{}, 1)}
		l.locks[sn] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(sn, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.release(sn, lk)
		})
	}, nil
}

func (l *identityLocks) release(sn string, lk *identityLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, sn)
	}
}

func (l *identityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
