// Package guard filters duplicate webhook deliveries and serializes events
// of the same user so that read-modify-write cycles on a session never
// interleave.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	dedupePrefix = "quizbot:dedupe:"
	lockPrefix   = "quizbot:lock:"

	defaultPollInterval = 25 * time.Millisecond
	releaseTimeout      = 2 * time.Second
)

// ErrLockTimeout is returned when the lock could not be taken before ctx ended.
var ErrLockTimeout = errors.New("lock wait timed out")

// releaseScript deletes the lock only while it still carries our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// client is the subset of redis.Cmdable the guard needs.
type client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisOptions configures a Redis guard.
type RedisOptions struct {
	DedupeTTL    time.Duration
	LockTTL      time.Duration
	PollInterval time.Duration
}

// Redis implements quiz.Guard on top of a shared Redis instance so that
// several replicas agree on duplicates and lock ownership.
type Redis struct {
	rdb  client
	opts RedisOptions
	// token is overridable in tests.
	token func() string
}

// NewRedis wraps an existing client.
func NewRedis(rdb client, opts RedisOptions) *Redis {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Redis{rdb: rdb, opts: opts, token: uuid.NewString}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// FirstDelivery records key and reports whether it was new.
func (r *Redis) FirstDelivery(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, dedupePrefix+key, 1, r.opts.DedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe %s: %w", key, err)
	}
	return ok, nil
}

// Forget removes key so the next delivery is treated as new.
func (r *Redis) Forget(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, dedupePrefix+key).Err(); err != nil {
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}

// Lock polls until the key is free or ctx ends. The lock expires on its own
// after LockTTL so a crashed replica cannot wedge a user.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := lockPrefix + key
	token := r.token()
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, k, token, r.opts.LockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return func() { r.release(k, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

func (r *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	// A failed release leaves the key to expire after LockTTL.
	_ = r.rdb.Eval(ctx, releaseScript, []string{key}, token).Err()
}
