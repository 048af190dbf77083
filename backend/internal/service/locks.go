package service

import "sync"

// KeyedMutex hands out one non-blocking lock per key. Entries are dropped on
// unlock, so the map only holds keys that are currently busy.
type KeyedMutex[K comparable] struct {
	mu   sync.Mutex
	busy map[K]struct{}
}

func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{busy: make(map[K]struct{})}
}

// TryLock returns an unlock func and true, or nil and false when key is held.
func (k *KeyedMutex[K]) TryLock(key K) (func(), bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, held := k.busy[key]; held {
		return nil, false
	}
	k.busy[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.busy, key)
			k.mu.Unlock()
		})
	}, true
}
