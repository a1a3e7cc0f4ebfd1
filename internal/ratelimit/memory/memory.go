package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count     int64
	expiresAt time.Time
}

// Store is an in-process counter store for single-instance deployments
// and tests. Counters are not shared across replicas; use the redis store
// when more than one gateway process serves traffic.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	now          func() time.Time
	cleanupEvery time.Duration
}

type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCleanupEvery sets the janitor interval. Zero disables the janitor.
func WithCleanupEvery(d time.Duration) Option {
	return func(s *Store) { s.cleanupEvery = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		entries:      make(map[string]*entry),
		now:          time.Now,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr increments the counter at key, creating it with the given ttl when
// absent or expired, and returns the post-increment count.
func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !ent.expiresAt.After(now) {
		ent = &entry{expiresAt: now.Add(ttl)}
		s.entries[key] = ent
	}
	ent.count++
	return ent.count, nil
}

func (s *Store) Close() error { return nil }

// Cleanup drops every expired counter.
func (s *Store) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !ent.expiresAt.After(now) {
			delete(s.entries, k)
		}
	}
}

// Len reports the number of live entries. Used by tests and debugging.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor evicts expired counters periodically until ctx is done.
// Expired entries are already ignored by Incr; the janitor only bounds
// memory for clients that stop sending traffic.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
