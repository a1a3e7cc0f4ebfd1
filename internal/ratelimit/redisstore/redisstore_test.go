package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func testAddr() string {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		return v
	}
	return "localhost:6379"
}

func requireRedis(t *testing.T) string {
	t.Helper()
	addr := testAddr()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping integration test: Redis not available (%v)", err)
	}
	return addr
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestStore_IncrCountsAndExpires(t *testing.T) {
	addr := requireRedis(t)

	s, err := New(Config{Addr: addr}, WithPrefix("reviewgate_test:"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	key := fmt.Sprintf("incr_%d", time.Now().UnixNano())

	got, err := s.Incr(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("first incr: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected first count 1, got %d", got)
	}

	got, err = s.Incr(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("second incr: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected second count 2, got %d", got)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ttl, err := client.TTL(ctx, "reviewgate_test:"+key).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl in (0, 1m], got %s", ttl)
	}
}

func TestStore_IncrHonorsTimeout(t *testing.T) {
	addr := requireRedis(t)

	s, err := New(Config{Addr: addr}, WithTimeout(time.Nanosecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.Incr(context.Background(), "timeout_key", time.Minute); err == nil {
		t.Fatalf("expected deadline error with 1ns timeout")
	}
}
