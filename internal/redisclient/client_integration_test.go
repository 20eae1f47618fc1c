//go:build integration

package redisclient

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	client, err := NewClient(testutil.SetupRedis(ctx, t), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestBlobFreshness(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	stored := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, client.SetBlob(ctx, "invoice-1", []byte("%PDF-1.3"), stored, 0))

	data, ok, err := client.GetFreshBlob(ctx, "invoice-1", stored.Add(30*time.Minute), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("%PDF-1.3"), data)

	_, ok, err = client.GetFreshBlob(ctx, "invoice-1", stored.Add(61*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	// the stale read removed the entry
	_, ok, err = client.GetFreshBlob(ctx, "invoice-1", stored, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = client.GetFreshBlob(ctx, "never-written", stored, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlobRetention(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetBlob(ctx, "kept", []byte("a"), time.Now(), 2*time.Hour))
	ttl, err := client.rdb.TTL(ctx, blobKey("kept")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
	assert.LessOrEqual(t, ttl, 2*time.Hour)

	require.NoError(t, client.SetBlob(ctx, "forever", []byte("b"), time.Now(), 0))
	ttl, err = client.rdb.TTL(ctx, blobKey("forever")).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestLocks(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	token, ok, err := client.AcquireLock(ctx, "checkout:abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = client.AcquireLock(ctx, "checkout:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// a foreign token does not release the lock
	require.NoError(t, client.ReleaseLock(ctx, "checkout:abc", "not-the-owner"))
	_, ok, err = client.AcquireLock(ctx, "checkout:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.ReleaseLock(ctx, "checkout:abc", token))
	_, ok, err = client.AcquireLock(ctx, "checkout:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotencyKeys(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	_, found, err := client.GetIdempotencyKey(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.SetIdempotencyKey(ctx, "abc", "42", time.Hour))
	value, found, err := client.GetIdempotencyKey(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", value)
}
