package invoice

import (
	"context"
	"time"

	"checkout-service/internal/models"
)

// BlobStore is satisfied by redisclient.Client
type BlobStore interface {
	SetBlob(ctx context.Context, key string, data []byte, storedAt time.Time, retention time.Duration) error
	GetFreshBlob(ctx context.Context, key string, now time.Time, maxAge time.Duration) ([]byte, bool, error)
}

// RedisCache keeps invoices in Redis hashes with their write time. Freshness
// is decided at read time; the Redis expiry of twice the TTL only collects
// entries nobody asks for again.
type RedisCache struct {
	blobs BlobStore
	ttl   time.Duration
	now   func() time.Time
}

func NewRedisCache(blobs BlobStore, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{blobs: blobs, ttl: ttl, now: time.Now}
}

func (c *RedisCache) Get(ctx context.Context, snap models.OrderSnapshot) ([]byte, bool, error) {
	return c.blobs.GetFreshBlob(ctx, "invoice:"+Key(snap), c.now(), c.ttl)
}

func (c *RedisCache) Set(ctx context.Context, snap models.OrderSnapshot, pdf []byte) error {
	return c.blobs.SetBlob(ctx, "invoice:"+Key(snap), pdf, c.now(), 2*c.ttl)
}
