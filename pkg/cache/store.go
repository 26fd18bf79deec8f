// Package cache holds the id-keyed entity stores that mirror server state.
package cache

import (
	"sort"
	"sync"
)

// Store is a concurrency-safe map from id to entity.
type Store[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewStore creates an empty store.
func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{items: make(map[K]V)}
}

// Get returns the value stored under key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	return v, ok
}

// Has reports whether key is present.
func (s *Store[K, V]) Has(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[key]
	return ok
}

// Set stores value under key, replacing any previous value.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = value
}

// SetIfAbsent stores value only when key is not present yet. It returns the
// value that ends up stored and whether it was inserted by this call.
func (s *Store[K, V]) SetIfAbsent(key K, value V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[key]; ok {
		return existing, false
	}
	s.items[key] = value
	return value, true
}

// Delete removes key and returns the value it held.
func (s *Store[K, V]) Delete(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// Len returns the number of entries.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Clear drops every entry.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[K]V)
}

// Range calls fn for each entry until fn returns false. It iterates over a
// snapshot, so fn may modify the store.
func (s *Store[K, V]) Range(fn func(key K, value V) bool) {
	for _, e := range s.snapshot() {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Values returns a snapshot of all values.
func (s *Store[K, V]) Values() []V {
	entries := s.snapshot()
	out := make([]V, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

// Keys returns a snapshot of all keys.
func (s *Store[K, V]) Keys() []K {
	entries := s.snapshot()
	out := make([]K, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}

// Filter returns the values for which keep returns true.
func (s *Store[K, V]) Filter(keep func(V) bool) []V {
	var out []V
	for _, e := range s.snapshot() {
		if keep(e.value) {
			out = append(out, e.value)
		}
	}
	return out
}

// Find returns the first value for which match returns true.
func (s *Store[K, V]) Find(match func(V) bool) (V, bool) {
	for _, e := range s.snapshot() {
		if match(e.value) {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

func (s *Store[K, V]) snapshot() []entry[K, V] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entry[K, V], 0, len(s.items))
	for k, v := range s.items {
		out = append(out, entry[K, V]{key: k, value: v})
	}
	return out
}

// SortedKeys returns the keys of a string-keyed store in ascending order.
func SortedKeys[V any](s *Store[string, V]) []string {
	keys := s.Keys()
	sort.Strings(keys)
	return keys
}
