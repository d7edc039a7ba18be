package stock

import (
	"sort"
	"sync"
)

// KeyedMutex serializes work per ingredient. Locks for several ingredients
// are always taken in sorted order so two batches cannot deadlock.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[IngredientID]*keyedLock
}

type keyedLock struct {
	mu      sync.Mutex
	waiters int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[IngredientID]*keyedLock)}
}

// Lock acquires every distinct id and returns a func that releases them.
func (k *KeyedMutex) Lock(ids ...IngredientID) (unlock func()) {
	keys := SortedUnique(ids)

	held := make([]*keyedLock, 0, len(keys))
	for _, id := range keys {
		k.mu.Lock()
		l, ok := k.locks[id]
		if !ok {
			l = &keyedLock{}
			k.locks[id] = l
		}
		l.waiters++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(keys[i], held[i])
		}
	}
}

func (k *KeyedMutex) release(id IngredientID, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.waiters--
	if l.waiters == 0 {
		delete(k.locks, id)
	}
}

// SortedUnique returns ids deduplicated in ascending order.
func SortedUnique(ids []IngredientID) []IngredientID {
	seen := make(map[IngredientID]bool, len(ids))
	out := make([]IngredientID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
