package memstore

import (
	"context"
	"sync"
)

// lockTable hands out exclusive row locks to units of work. A unit of work
// holds every lock it takes until it commits or rolls back.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	owner    *unitOfWork
	released chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

// acquire blocks until owner holds key. It reports whether the lock is newly taken.
func (t *lockTable) acquire(ctx context.Context, key string, owner *unitOfWork) (bool, error) {
	for {
		t.mu.Lock()
		entry, held := t.entries[key]
		if !held {
			t.entries[key] = &lockEntry{owner: owner, released: make(chan struct{})}
			t.mu.Unlock()
			return true, nil
		}
		if entry.owner == owner {
			t.mu.Unlock()
			return false, nil
		}
		wait := entry.released
		t.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (t *lockTable) release(owner *unitOfWork, keys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, key := range keys {
		entry, held := t.entries[key]
		if !held || entry.owner != owner {
			continue
		}
		delete(t.entries, key)
		close(entry.released)
	}
}
