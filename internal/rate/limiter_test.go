package rate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, maxAttempts int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return New(rdb, Config{MaxAttempts: maxAttempts, Window: window, KeyPrefix: "t"}), mr
}

func TestCheckDeniesAfterMaxAttempts(t *testing.T) {
	l, _ := newTestLimiter(t, 10, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if err := l.Check(ctx, "203.0.113.7"); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if err := l.Check(ctx, "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("attempt 11: expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "198.51.100.1"); err != nil {
		t.Fatalf("other origin must have its own bucket, got %v", err)
	}

	n, err := l.Attempts(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("Attempts error: %v", err)
	}
	if n != 11 {
		t.Fatalf("expected denied attempts to count too, got %d", n)
	}
}

func TestWindowExpiryResetsBucket(t *testing.T) {
	l, mr := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = l.Check(ctx, "o")
	}
	if ttl := mr.TTL("t:o"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected bucket TTL within window, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)

	if err := l.Check(ctx, "o"); err != nil {
		t.Fatalf("expected fresh window after expiry, got %v", err)
	}
	if n, _ := l.Attempts(ctx, "o"); n != 1 {
		t.Fatalf("expected count 1 in new window, got %d", n)
	}
}

func TestKeyWithoutTTLIsRearmed(t *testing.T) {
	l, mr := newTestLimiter(t, 5, time.Minute)
	if err := mr.Set("t:stuck", "3"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := l.Check(context.Background(), "stuck"); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if ttl := mr.TTL("t:stuck"); ttl <= 0 {
		t.Fatalf("expected TTL to be re-armed, got %v", ttl)
	}
}

func TestEmptyOriginSharesOneBucket(t *testing.T) {
	l, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := l.Check(ctx, ""); err != nil {
		t.Fatalf("first unknown-origin attempt: %v", err)
	}
	if err := l.Check(ctx, ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected shared unknown bucket to limit, got %v", err)
	}
	if !mr.Exists("t:" + UnknownOrigin) {
		t.Fatal("expected unknown bucket key")
	}
}

func TestLongOriginIsHashed(t *testing.T) {
	l, mr := newTestLimiter(t, 5, time.Minute)
	long := strings.Repeat("x", 500)

	if err := l.Check(context.Background(), long); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	for _, k := range mr.Keys() {
		if len(k) > len("t:")+64 {
			t.Fatalf("key not bounded: %d bytes", len(k))
		}
	}
}

func TestConcurrentChecksCountExactly(t *testing.T) {
	l, _ := newTestLimiter(t, 10, time.Minute)
	ctx := context.Background()

	var denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(l.Check(ctx, "burst"), ErrRateLimited) {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	if denied.Load() != 15 {
		t.Fatalf("expected exactly 15 denials, got %d", denied.Load())
	}
}

func TestUnavailableStore(t *testing.T) {
	l, mr := newTestLimiter(t, 5, time.Minute)
	mr.Close()

	if err := l.Check(context.Background(), "o"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := l.Attempts(context.Background(), "o"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Attempts, got %v", err)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_ = l.Check(ctx, "o")
	_ = l.Check(ctx, "o")
	if err := l.Reset(ctx, "o"); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if err := l.Check(ctx, "o"); err != nil {
		t.Fatalf("expected allowed after reset, got %v", err)
	}
}

func TestCheckKeepsIncrementAfterCancel(t *testing.T) {
	l, _ := newTestLimiter(t, 5, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Check(ctx, "203.0.113.7"); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	cancel()

	if err := l.Check(ctx, "203.0.113.7"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected cancelled context to fail the call, got %v", err)
	}
	n, err := l.Attempts(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Attempts error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the counted attempt to survive cancellation, got %d", n)
	}
}
