// Package state holds the auxiliary stores that sit next to the canvas: caches of
// prompt variants and generated images, and the per-entity operation status.
package state

import (
	"sync"
	"time"

	"github.com/tidwall/btree"
	"promptcanvas/backend/pkg/metrics"
)

// ageKey orders entries oldest first; the id keeps equal timestamps distinct
type ageKey struct {
	CreatedAt int64
	ID        string
}

func ageKeyLess(a, b ageKey) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}

// Entry is a cached value keyed by the node it belongs to
type Entry[T any] struct {
	ID        string
	CreatedAt int64 // unix milliseconds
	Value     T
}

// EntityStore is a keyed cache with an age index, so that both age and count
// eviction walk entries oldest first without sorting.
type EntityStore[T any] struct {
	mu    sync.RWMutex
	name  string
	byID  map[string]Entry[T]
	byAge *btree.BTreeG[ageKey]
	now   func() time.Time
}

// StoreOption configures an EntityStore
type StoreOption func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp and age entries
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

// NewEntityStore creates an empty store. name labels its metrics and log lines.
func NewEntityStore[T any](name string, opts ...StoreOption) *EntityStore[T] {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &EntityStore[T]{
		name:  name,
		byID:  make(map[string]Entry[T]),
		byAge: btree.NewBTreeG[ageKey](ageKeyLess),
		now:   o.now,
	}
}

// Name returns the store label
func (s *EntityStore[T]) Name() string {
	return s.name
}

// Put stores value under id, stamped with the current time. An existing entry is
// replaced and re-aged.
func (s *EntityStore[T]) Put(id string, value T) Entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[id]; ok {
		s.byAge.Delete(ageKey{CreatedAt: old.CreatedAt, ID: id})
	}
	e := Entry[T]{ID: id, CreatedAt: s.now().UnixMilli(), Value: value}
	s.byID[id] = e
	s.byAge.Set(ageKey{CreatedAt: e.CreatedAt, ID: id})
	s.publish()
	return e
}

// Get returns the entry for id
func (s *EntityStore[T]) Get(id string) (Entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	return e, ok
}

// Delete removes id; unknown ids are ignored
func (s *EntityStore[T]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deleteLocked(id) {
		return false
	}
	s.publish()
	return true
}

func (s *EntityStore[T]) deleteLocked(id string) bool {
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	s.byAge.Delete(ageKey{CreatedAt: e.CreatedAt, ID: id})
	return true
}

// PruneOlderThan drops every entry created more than maxAge ago
func (s *EntityStore[T]) PruneOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge).UnixMilli()
	var stale []string
	s.byAge.Scan(func(k ageKey) bool {
		if k.CreatedAt >= cutoff {
			return false
		}
		stale = append(stale, k.ID)
		return true
	})
	return s.dropLocked(stale)
}

// LimitCount drops the oldest entries until at most max remain
func (s *EntityStore[T]) LimitCount(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max < 0 {
		max = 0
	}
	excess := len(s.byID) - max
	if excess <= 0 {
		return 0
	}

	stale := make([]string, 0, excess)
	s.byAge.Scan(func(k ageKey) bool {
		stale = append(stale, k.ID)
		return len(stale) < excess
	})
	return s.dropLocked(stale)
}

func (s *EntityStore[T]) dropLocked(ids []string) int {
	removed := 0
	for _, id := range ids {
		if s.deleteLocked(id) {
			removed++
		}
	}
	if removed > 0 {
		s.publish()
	}
	return removed
}

// Len returns the number of entries
func (s *EntityStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// IDs returns the entry ids, newest first
func (s *EntityStore[T]) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.byID))
	s.byAge.Reverse(func(k ageKey) bool {
		ids = append(ids, k.ID)
		return true
	})
	return ids
}

// Clear drops every entry
func (s *EntityStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]Entry[T])
	s.byAge.Clear()
	s.publish()
}

func (s *EntityStore[T]) publish() {
	metrics.CacheEntries.WithLabelValues(s.name).Set(float64(len(s.byID)))
}
