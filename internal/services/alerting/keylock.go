package alerting

import (
	"context"
	"sync"
)

type keyEntry struct {
	ch   chan struct{} // one-slot semaphore
	refs int
}

// KeyedMutex serialises callers per key. Different keys never block each other,
// and entries are dropped once nobody holds or waits on them.
type KeyedMutex struct {
	mu sync.Mutex
	m  map[string]*keyEntry
}

func NewKeyedMutex() *KeyedMutex { return &KeyedMutex{m: make(map[string]*keyEntry)} }

// Lock waits for key or ctx. On success the returned func releases the key.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.m[key]
	if !ok {
		e = &keyEntry{ch: make(chan struct{}, 1)}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.m, key)
	}
	k.mu.Unlock()
}

// Len reports how many keys are currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
