package service

import (
	"sort"
	"sync"
)

// UserLocks serializes mutations per user id. Entries are reference counted
// and dropped once nobody holds or waits on them.
type UserLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[int64]*userLock)}
}

// Lock acquires the locks of all ids in ascending order and returns the
// matching unlock func. Duplicate ids are locked once.
func (l *UserLocks) Lock(ids ...int64) (unlock func()) {
	ordered := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	held := make([]*userLock, 0, len(ordered))
	for _, id := range ordered {
		ul := l.acquire(id)
		ul.mu.Lock()
		held = append(held, ul)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(ordered[i])
		}
	}
}

func (l *UserLocks) acquire(id int64) *userLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul, ok := l.locks[id]
	if !ok {
		ul = &userLock{}
		l.locks[id] = ul
	}
	ul.refs++
	return ul
}

func (l *UserLocks) release(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul := l.locks[id]
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *UserLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
