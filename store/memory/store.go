// Package memory provides an in-memory implementation of store.Store.
//
// Counters live in a single map guarded by a mutex. Expiry is lazy: an entry
// is replaced the first time it is touched after its window ends. Nothing runs
// in the background, so keys that stop sending traffic stay in the map until
// Sweep, ResetAll, or the WithMaxKeys bound removes them.
//
//	s := memory.New()
//	n, _ := s.Increment(ctx, "ip:10.0.0.1", time.Minute)
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/krishna-kudari/windowlimit/clock"
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock. Intended for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithMaxKeys bounds the number of tracked keys. When a new key would push
// the map past n, expired entries are dropped first and then the entry whose
// window ends soonest. n <= 0 leaves the map unbounded (the default).
func WithMaxKeys(n int) Option {
	return func(s *Store) { s.maxKeys = n }
}

// Store implements store.Store with process-local state.
// All operations are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   clock.Clock
	maxKeys int
}

type entry struct {
	count   int64
	resetAt time.Time
}

// New creates an empty in-memory Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment implements store.Store.
func (s *Store) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if ok && !now.After(e.resetAt) {
		e.count++
		return e.count, nil
	}

	if !ok {
		s.makeRoom(now)
	}
	s.entries[key] = &entry{count: 1, resetAt: now.Add(window)}
	return 1, nil
}

// Reset forgets key. Implements store.Resetter.
func (s *Store) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// ResetAll drops every counter.
func (s *Store) ResetAll() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
}

// Len returns the number of tracked keys, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes entries whose window has ended and reports how many were
// removed. It is never called on the request path.
func (s *Store) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range s.entries {
		if now.After(e.resetAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// makeRoom keeps len(entries) below maxKeys before a new key is inserted.
// Caller holds s.mu.
func (s *Store) makeRoom(now time.Time) {
	if s.maxKeys <= 0 || len(s.entries) < s.maxKeys {
		return
	}
	if s.sweepLocked(now) > 0 && len(s.entries) < s.maxKeys {
		return
	}

	var (
		oldestKey   string
		oldestReset time.Time
		found       bool
	)
	for k, e := range s.entries {
		if !found || e.resetAt.Before(oldestReset) {
			oldestKey, oldestReset, found = k, e.resetAt, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}
