// Package registry provides a generic thread-safe registry for values
// indexed by key.
//
// The kernel uses registries for factory tables: handler factories and
// generator factories keyed by their configuration kind, dispatch entries
// keyed by handler kind, and output writers keyed by output name. Reads
// dominate once a run is assembled, so the registry is built on
// sync.RWMutex.
//
//	factories := registry.New[string, HandlerFactory]()
//	factories.Register("pair-collider", newPairCollider)
//
//	factory, ok := factories.Get(cfg.Kind)
//	if !ok {
//	    return fmt.Errorf("unknown handler kind %q", cfg.Kind)
//	}
//
// RegisterOnce refuses duplicate keys, which dispatch tables rely on to keep
// one entry per handler kind. GetOrCreate initializes a value lazily and at
// most once per key, which the output registry uses to open one writer per
// output name.
package registry

import "sync"

// Registry is a thread-safe map of values indexed by a comparable key.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Register adds or replaces the value stored under key.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// RegisterOnce adds the value under key unless the key is already taken. It
// reports whether the value was stored.
func (r *Registry[K, V]) RegisterOnce(key K, value V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.entries[key]; taken {
		return false
	}
	r.entries[key] = value
	return true
}

// Get returns the value stored under key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Delete removes key. Deleting a missing key is a no-op.
func (r *Registry[K, V]) Delete(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Keys returns every registered key in no particular order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for every entry until fn returns false. It iterates over a
// snapshot taken under the read lock, so fn may register and delete entries
// without affecting the iteration.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	snapshot := make(map[K]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// GetOrCreate returns the value stored under key, creating it with factory
// if the key is missing. The factory runs at most once per key, even under
// concurrent access.
func (r *Registry[K, V]) GetOrCreate(key K, factory func() V) V {
	r.mu.RLock()
	v, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have won the write lock first.
	if v, ok := r.entries[key]; ok {
		return v
	}

	v = factory()
	r.entries[key] = v
	return v
}
