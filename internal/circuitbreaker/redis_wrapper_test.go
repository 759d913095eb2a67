package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapperNormalOperations(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	if err := wrapper.Ping(ctx).Err(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if err := wrapper.Set(ctx, "polya:result:abc", "payload", time.Minute).Err(); err != nil {
		t.Errorf("Set failed: %v", err)
	}
	got := wrapper.Get(ctx, "polya:result:abc")
	if got.Err() != nil {
		t.Errorf("Get failed: %v", got.Err())
	}
	if got.Val() != "payload" {
		t.Errorf("expected payload, got %q", got.Val())
	}

	// A miss must not count against the breaker.
	if err := wrapper.Get(ctx, "polya:result:missing").Err(); err != redis.Nil {
		t.Errorf("expected redis.Nil, got %v", err)
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("breaker should stay closed on cache misses")
	}

	if err := wrapper.Del(ctx, "polya:result:abc").Err(); err != nil {
		t.Errorf("Del failed: %v", err)
	}
}

func TestRedisWrapperOpensOnServerLoss(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()

	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	s.Close()

	// Enough consecutive failures to trip the default threshold.
	for i := 0; i < 5; i++ {
		_ = wrapper.Get(ctx, "any").Err()
	}
	if !wrapper.IsCircuitBreakerOpen() {
		t.Error("breaker should open after repeated connection failures")
	}

	// Open breaker short-circuits without touching the client.
	if err := wrapper.Get(ctx, "any").Err(); err == nil {
		t.Error("expected error through open breaker")
	}
}
