package presence

import "sync"

// keyedLocks hands out one mutex per person identity key so presence
// transitions for the same person are serialized without a global lock.
type keyedLocks struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) add(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	if l, ok := k.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	k.locks[key] = l
	return l
}

func (k *keyedLocks) get(key string) *sync.Mutex {
	k.mu.RLock()
	l, ok := k.locks[key]
	k.mu.RUnlock()

	if !ok {
		return k.add(key)
	}
	return l
}
