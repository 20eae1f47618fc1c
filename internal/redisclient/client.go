package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/get_fresh.lua
var getFreshScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	freshScript   *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		freshScript:   redis.NewScript(getFreshScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetBlob stores data together with the time it was written. A positive
// retention sets a Redis expiry so blobs that are never read again go away.
func (c *Client) SetBlob(ctx context.Context, key string, data []byte, storedAt time.Time, retention time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, blobKey(key), "data", data, "stored_at", storedAt.Unix())
		if retention > 0 {
			pipe.Expire(ctx, blobKey(key), retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

// GetFreshBlob returns the blob stored under key if it is younger than
// maxAge. A stale blob is deleted in the same script call.
func (c *Client) GetFreshBlob(ctx context.Context, key string, now time.Time, maxAge time.Duration) ([]byte, bool, error) {
	result, err := c.freshScript.Run(ctx, c.rdb, []string{blobKey(key)},
		now.Unix(), int64(maxAge.Seconds())).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get fresh blob script failed: %w", err)
	}

	data, ok := result.(string)
	if !ok {
		return nil, false, fmt.Errorf("unexpected script result type %T", result)
	}
	return []byte(data), true, nil
}

// SetIdempotencyKey stores the result of an idempotent request with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), value, ttl).Err()
}

// GetIdempotencyKey returns the stored result for key, if any
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// AcquireLock acquires a distributed lock and returns the owner token
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockName(lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases the lock only if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockName(lockKey)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func blobKey(key string) string {
	return fmt.Sprintf("blob:%s", key)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

func lockName(key string) string {
	return fmt.Sprintf("lock:%s", key)
}
