package memstore

import (
	"context"
	"sort"
	"sync"
)

// keyLocks hands out context-aware mutexes by name. Entries are dropped once unused.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: map[string]*keyLock{}}
}

// acquire locks every key in sorted order and returns a func releasing them all.
func (k *keyLocks) acquire(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var taken []string
	release := func() {
		for i := len(taken) - 1; i >= 0; i-- {
			k.unlock(taken[i])
		}
	}
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		if err := k.lock(ctx, key); err != nil {
			release()
			return nil, err
		}
		taken = append(taken, key)
	}
	return release, nil
}

func (k *keyLocks) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.held[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.held[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
		return ctx.Err()
	}
}

func (k *keyLocks) unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.held[key]
	if !ok {
		return
	}
	<-l.ch
	l.refs--
	if l.refs == 0 {
		delete(k.held, key)
	}
}
