package core

import "sync"

// SyncMap is an implementation of a map that is safe for concurrent usage.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok = s.m[key]
	return
}

// Swap stores value for key and returns the value it replaced, if any.
func (s *SyncMap[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, loaded = s.m[key]
	s.m[key] = value
	return
}

// Update applies f to the value stored for key and stores the result.
// It does nothing and returns false when the key is absent.
// The whole operation is atomic.
func (s *SyncMap[K, V]) Update(key K, f func(value V) V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.m[key]
	if !ok {
		return value, false
	}
	value = f(value)
	s.m[key] = value
	return value, true
}

// LoadAndDelete removes the value for key and returns it.
func (s *SyncMap[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, loaded = s.m[key]
	if loaded {
		delete(s.m, key)
	}
	return
}

// Values returns a point-in-time copy of the stored values.
func (s *SyncMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make([]V, 0, len(s.m))
	for _, v := range s.m {
		values = append(values, v)
	}
	return values
}

func (s *SyncMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
