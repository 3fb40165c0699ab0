// Package cache provides a TTL-bounded in-memory store with per-key
// single-flight fetch deduplication. One Store holds one resource kind;
// every store shares the same 10-minute TTL.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TTL is the uniform time-to-live for every cached resource kind.
const TTL = 10 * time.Minute

type entry[V any] struct {
	data      V
	fetchedAt time.Time
}

// Store is a TTL cache keyed by K. Concurrent fetches for the same key
// share one in-flight call.
type Store[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	flight  singleflight.Group
	now     func() time.Time
}

// New creates an empty store using the wall clock.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// NewWithClock creates a store with an injected clock for tests.
func NewWithClock[K comparable, V any](now func() time.Time) *Store[K, V] {
	return &Store[K, V]{
		entries: make(map[K]entry[V]),
		now:     now,
	}
}

// Fresh returns the cached value for key if it exists and has not
// outlived the TTL.
func (s *Store[K, V]) Fresh(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.now().Sub(e.fetchedAt) >= TTL {
		var zero V
		return zero, false
	}
	return e.data, true
}

// Last returns the cached value for key regardless of age, with the
// time it was fetched.
func (s *Store[K, V]) Last(key K) (V, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, time.Time{}, false
	}
	return e.data, e.fetchedAt, true
}

// Put stores a value fetched now. A later fetch overwrites an earlier
// one unconditionally (last write wins).
func (s *Store[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{data: value, fetchedAt: s.now()}
}

// Keys returns the keys of every entry, fresh or stale, in no
// particular order.
func (s *Store[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]K, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Invalidate drops the entry for key.
func (s *Store[K, V]) Invalidate(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear drops every entry.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[K]entry[V])
}

// GetOrFetch returns the fresh cached value, or invokes fetch and
// stores the result. With force the fetch always runs. Concurrent
// callers for the same key share one fetch; every sharer receives the
// same value and error. Fetch failures leave the previous entry in
// place and are returned to the caller, which decides the fallback.
func (s *Store[K, V]) GetOrFetch(ctx context.Context, key K, force bool, fetch func(ctx context.Context) (V, error)) (V, error) {
	if !force {
		if v, ok := s.Fresh(key); ok {
			return v, nil
		}
	}

	v, err, _ := s.flight.Do(flightKey(key), func() (any, error) {
		// Re-check under the flight: a sharer queued behind a
		// completed fetch should not trigger another one.
		if !force {
			if v, ok := s.Fresh(key); ok {
				return v, nil
			}
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.Put(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func flightKey[K comparable](key K) string {
	return fmt.Sprintf("%v", key)
}
