package memory

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStore_IncrCounts(t *testing.T) {
	s := New()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}

	got, _ := s.Incr(ctx, "other", time.Minute)
	if got != 1 {
		t.Fatalf("expected fresh key to start at 1, got %d", got)
	}
}

func TestStore_ExpiredKeyRestartsAtOne(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, _ = s.Incr(ctx, "k", time.Second)
	_, _ = s.Incr(ctx, "k", time.Second)

	now = now.Add(1500 * time.Millisecond)
	got, _ := s.Incr(ctx, "k", time.Second)
	if got != 1 {
		t.Fatalf("expected expired key to restart at 1, got %d", got)
	}
}

func TestStore_CleanupRemovesExpiredOnly(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, _ = s.Incr(ctx, "short", time.Second)
	_, _ = s.Incr(ctx, "long", time.Hour)

	now = now.Add(2 * time.Second)
	s.Cleanup()

	if s.Len() != 1 {
		t.Fatalf("expected one surviving entry, got %d", s.Len())
	}
	if got, _ := s.Incr(ctx, "long", time.Hour); got != 2 {
		t.Fatalf("expected long-lived counter to survive cleanup, got %d", got)
	}
}

func TestStore_ConcurrentIncrLosesNoUpdates(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.Incr(ctx, "k", time.Minute)
		}()
	}
	wg.Wait()

	got, _ := s.Incr(ctx, "k", time.Minute)
	if got != 101 {
		t.Fatalf("expected 101 after 100 concurrent increments, got %d", got)
	}
}
