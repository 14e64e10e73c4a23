package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it is still held by the caller's
// token, so an expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures a RedisLocker.
type RedisConfig struct {
	// Prefix is prepended to every key (default "pawls:lock:").
	Prefix string

	// TTL bounds how long a crashed holder can keep a key (default 30s).
	// Locks are not renewed: a holder whose critical section outlives TTL
	// loses mutual exclusion, and the release logs a warning when that
	// happened. Keep TTL well above the longest expected hold.
	TTL time.Duration

	// MaxWait bounds how long Lock retries before giving up (default 10s).
	MaxWait time.Duration
}

// RedisLocker is a Locker shared between processes through Redis.
type RedisLocker struct {
	client *redis.Client
	cfg    RedisConfig
	logger hclog.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a RedisLocker from a redis:// URL and verifies the
// server is reachable.
func NewRedisLocker(redisURL string, cfg RedisConfig, logger hclog.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLockerWithClient(client, cfg, logger), nil
}

// NewRedisLockerWithClient creates a RedisLocker from an existing client.
func NewRedisLockerWithClient(client *redis.Client, cfg RedisConfig, logger hclog.Logger) *RedisLocker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "pawls:lock:"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 10 * time.Second
	}
	return &RedisLocker{
		client: client,
		cfg:    cfg,
		logger: logger.Named("redis-locker"),
	}
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.cfg.Prefix + key
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = l.cfg.MaxWait

	errHeld := errors.New("lock held")
	acquire := func() error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire %s: %w", key, err))
		}
		if !ok {
			return errHeld
		}
		return nil
	}

	if err := backoff.Retry(acquire, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, errHeld) {
			return nil, fmt.Errorf("timed out waiting for lock %s", key)
		}
		return nil, err
	}

	return func() {
		// Release must run even if the caller's context is already done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		released, err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			l.logger.Warn("failed to release lock", "key", key, "error", err)
			return
		}
		if released == 0 {
			l.logger.Warn("lock expired before release",
				"key", key,
				"ttl", l.cfg.TTL,
			)
		}
	}, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
