package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Tier names a rate-limit policy applied to a class of routes.
type Tier string

const (
	TierAPI      Tier = "api"
	TierDataRead Tier = "data-read"
	TierAuth     Tier = "auth"
	TierMutation Tier = "mutation"
	TierSeed     Tier = "seed"
)

// TierConfig is the per-tier policy: how many requests fit into one
// fixed counting window. Built once at startup, never mutated.
type TierConfig struct {
	WindowSeconds int
	MaxRequests   int
}

// Decision is the admission outcome for a single request.
type Decision struct {
	Allowed      bool
	Limit        int   // quota for the resolved tier
	Remaining    int   // requests left in the current window (min 0)
	ResetUnixSec int64 // end boundary of the current window
}

// RetryAfter returns how long the caller should wait before retrying,
// clamped to zero.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := time.Duration(d.ResetUnixSec-now.Unix()) * time.Second
	if wait < 0 {
		return 0
	}
	return wait
}

// CounterStore is the shared counter backing the limiters. Incr must
// atomically increment the counter at key, start its expiry at ttl when the
// key is created, and return the post-increment count. Concurrent callers
// must never observe lost updates.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Close() error
}

// Limiter applies one tier's fixed-window policy on top of a CounterStore.
type Limiter struct {
	tier  Tier
	cfg   TierConfig
	store CounterStore
	now   func() time.Time
}

// Check consumes one request from clientKey's budget and reports the
// decision. A count equal to MaxRequests is still allowed; only counts
// beyond it are rejected. Errors are store errors, the caller decides
// what an unreachable store means.
func (l *Limiter) Check(ctx context.Context, clientKey string) (Decision, error) {
	window := int64(l.cfg.WindowSeconds)
	bucket := l.now().Unix() / window

	key := "rl:" + string(l.tier) + ":" + clientKey + ":" + strconv.FormatInt(bucket, 10)
	count, err := l.store.Incr(ctx, key, time.Duration(window)*time.Second)
	if err != nil {
		return Decision{}, fmt.Errorf("counter incr for tier %s: %w", l.tier, err)
	}

	remaining := l.cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:      count <= int64(l.cfg.MaxRequests),
		Limit:        l.cfg.MaxRequests,
		Remaining:    remaining,
		ResetUnixSec: (bucket + 1) * window,
	}, nil
}

// Tier reports which policy tier this limiter enforces.
func (l *Limiter) Tier() Tier { return l.tier }

// Registry holds one configured Limiter per tier, all sharing a single
// CounterStore.
type Registry struct {
	limiters map[Tier]*Limiter
}

type RegistryOption func(*registrySettings)

type registrySettings struct {
	now func() time.Time
}

// WithClock overrides the time source, used by tests to pin window
// boundaries.
func WithClock(now func() time.Time) RegistryOption {
	return func(s *registrySettings) { s.now = now }
}

// NewRegistry builds the per-tier limiters. Every tier must carry a
// positive window and quota; serving with a broken policy table is worse
// than not starting.
func NewRegistry(store CounterStore, configs map[Tier]TierConfig, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one tier must be configured")
	}

	settings := registrySettings{now: time.Now}
	for _, opt := range opts {
		opt(&settings)
	}

	limiters := make(map[Tier]*Limiter, len(configs))
	for tier, cfg := range configs {
		if cfg.WindowSeconds <= 0 {
			return nil, fmt.Errorf("tier %s: window_seconds must be > 0", tier)
		}
		if cfg.MaxRequests <= 0 {
			return nil, fmt.Errorf("tier %s: max_requests must be > 0", tier)
		}
		limiters[tier] = &Limiter{
			tier:  tier,
			cfg:   cfg,
			store: store,
			now:   settings.now,
		}
	}

	return &Registry{limiters: limiters}, nil
}

// ForTier returns the limiter enforcing the given tier.
func (r *Registry) ForTier(tier Tier) (*Limiter, bool) {
	l, ok := r.limiters[tier]
	return l, ok
}

// Tiers lists every configured tier.
func (r *Registry) Tiers() []Tier {
	out := make([]Tier, 0, len(r.limiters))
	for t := range r.limiters {
		out = append(out, t)
	}
	return out
}
