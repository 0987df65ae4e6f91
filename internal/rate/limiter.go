package rate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// UnknownOrigin is the shared bucket for requests without a usable origin.
	UnknownOrigin = "unknown"

	maxOriginKeyLen  = 128
	defaultKeyPrefix = "lg:rl"
)

// incrScript increments the bucket and arms the window TTL in one round trip.
// A key that somehow lost its TTL is re-armed instead of living forever.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	KeyPrefix   string
}

// Limiter enforces a fixed-window attempt budget per client origin.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check counts one attempt for origin and returns ErrRateLimited when the
// post-increment count exceeds MaxAttempts. The increment is kept even when
// the caller's context is cancelled afterwards.
func (l *Limiter) Check(ctx context.Context, origin string) error {
	count, err := incrScript.Run(ctx, l.redis, []string{l.key(origin)}, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Attempts returns the current count for origin. Missing buckets report zero.
func (l *Limiter) Attempts(ctx context.Context, origin string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(origin)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset deletes the bucket for origin. Login success does not call this;
// it exists for operator tooling.
func (l *Limiter) Reset(ctx context.Context, origin string) error {
	if err := l.redis.Del(ctx, l.key(origin)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(origin string) string {
	return l.config.KeyPrefix + ":" + originKey(origin)
}

func originKey(origin string) string {
	if origin == "" {
		return UnknownOrigin
	}
	if len(origin) > maxOriginKeyLen {
		sum := sha256.Sum256([]byte(origin))
		return hex.EncodeToString(sum[:])
	}
	return origin
}
