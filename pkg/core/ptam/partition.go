package ptam

import (
	"sync"

	"github.com/msto63/hive/pkg/core/apperr"
)

// partition is the register table for one value type. Every method holds
// the partition lock for a single map operation.
type partition[T any] struct {
	mu       sync.RWMutex
	items    map[string]T
	capacity int
	kind     Kind
}

func newPartition[T any](kind Kind, capacity int) *partition[T] {
	return &partition[T]{
		items:    make(map[string]T, capacity),
		capacity: capacity,
		kind:     kind,
	}
}

// store inserts or overwrites key. A new key is rejected when the table is full.
func (p *partition[T]) store(key string, value T) error {
	if key == "" {
		return apperr.Wrapf(ErrInvalidKey, "%s register", p.kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.items[key]; !exists && len(p.items) >= p.capacity {
		return apperr.Wrapf(ErrCapacityExceeded, "%s register %q (%d/%d)", p.kind, key, len(p.items), p.capacity)
	}
	p.items[key] = value
	return nil
}

// retrieve returns a copy of the value stored under key
func (p *partition[T]) retrieve(key string) (T, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.items[key]
	if !ok {
		var zero T
		return zero, apperr.Wrapf(ErrKeyNotFound, "%s register %q", p.kind, key)
	}
	return value, nil
}

func (p *partition[T]) has(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.items[key]
	return ok
}

func (p *partition[T]) clear(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, key)
}

func (p *partition[T]) clearAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = make(map[string]T, p.capacity)
}

func (p *partition[T]) len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// snapshot copies the table. T is a value type, so the copy shares nothing
// with the live map.
func (p *partition[T]) snapshot() map[string]T {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cp := make(map[string]T, len(p.items))
	for k, v := range p.items {
		cp[k] = v
	}
	return cp
}

func (p *partition[T]) stats() PartitionStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PartitionStats{
		Kind:     p.kind,
		Len:      len(p.items),
		Capacity: p.capacity,
	}
}
