package services

import (
	"context"
	"sync"
)

// MarketLocker serializes writers of one market. Lock blocks until the
// market is free or ctx ends; the returned unlock is safe to call twice.
type MarketLocker interface {
	Lock(ctx context.Context, marketID string) (unlock func(), err error)
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex is an in-process MarketLocker. Entries are reference counted
// and dropped once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, marketID string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[marketID]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[marketID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(marketID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(marketID, e)
		})
	}, nil
}

func (k *KeyedMutex) release(marketID string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, marketID)
	}
}

// size reports how many markets currently have holders or waiters.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
