// Package redisstore backs the rate-limit counters with Redis, giving all
// gateway replicas one shared budget per client.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Option func(*Store)

// WithPrefix namespaces every counter key (default "reviewgate:").
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTimeout bounds each counter operation. An exceeded deadline surfaces
// as a store error, which the middleware treats as fail-open.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New connects to Redis and verifies reachability before serving.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	s := &Store{
		client:  client,
		prefix:  "reviewgate:",
		timeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Incr atomically increments the counter and starts its expiry on first
// write. INCR and EXPIRE NX run in one transaction, so concurrent callers
// always observe distinct counts and the key's lifetime never extends past
// the first window.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	full := s.prefix + key
	pipe := s.client.TxPipeline()
	counter := pipe.Incr(ctx, full)
	pipe.ExpireNX(ctx, full, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return counter.Val(), nil
}
