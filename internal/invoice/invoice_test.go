package invoice

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() models.OrderSnapshot {
	return models.OrderSnapshot{
		Order: models.Order{
			ID:          42,
			UserID:      7,
			OrderDate:   time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC),
			TotalAmount: decimal.RequireFromString("100.00"),
		},
		Lines: []models.SnapshotLine{
			{ProductID: 1, Name: "Ceramic Mug", Description: "Stoneware", Quantity: 2, Price: decimal.RequireFromString("50.00")},
		},
		User:            models.User{ID: 7, Name: "Ada", Email: "ada@example.com"},
		ShippingAddress: models.Address{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		Discount:        decimal.RequireFromString("30"),
		ChargeTotal:     decimal.RequireFromString("70"),
	}
}

func TestKeyIgnoresFieldsOutsideProjection(t *testing.T) {
	base := sampleSnapshot()

	changed := sampleSnapshot()
	changed.Lines[0].Description = "Now dishwasher safe"
	changed.Lines[0].ImageURL = "https://cdn.example.com/new.jpg"
	changed.User.Email = "other@example.com"
	changed.BankName = "Citibank"

	assert.Equal(t, Key(base), Key(changed))
	assert.Len(t, Key(base), 32)
}

func TestKeyChangesWithProjectedFields(t *testing.T) {
	base := sampleSnapshot()

	qty := sampleSnapshot()
	qty.Lines[0].Quantity = 3
	assert.NotEqual(t, Key(base), Key(qty))

	price := sampleSnapshot()
	price.Lines[0].Price = decimal.RequireFromString("49.99")
	assert.NotEqual(t, Key(base), Key(price))

	total := sampleSnapshot()
	total.Order.TotalAmount = decimal.RequireFromString("101")
	assert.NotEqual(t, Key(base), Key(total))

	// 100 and 100.00 are the same amount
	scale := sampleSnapshot()
	scale.Order.TotalAmount = decimal.NewFromInt(100)
	assert.Equal(t, Key(base), Key(scale))
}

func TestFileCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)

	snap := sampleSnapshot()
	_, ok, err := cache.Get(ctx, snap)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, snap, []byte("%PDF-fake")))

	other := sampleSnapshot()
	other.User.Name = "Someone Else"
	data, ok, err := cache.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("%PDF-fake"), data)
}

func TestFileCacheExpiredEntryIsDeletedOnRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache, err := NewFileCache(dir, time.Hour)
	require.NoError(t, err)

	snap := sampleSnapshot()
	require.NoError(t, cache.Set(ctx, snap, []byte("%PDF-old")))

	path := filepath.Join(dir, Key(snap)+".pdf")
	old := time.Now().Add(-61 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	data, ok, err := cache.Get(ctx, snap)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

type memoryBlobs struct {
	mu        sync.Mutex
	data      map[string][]byte
	saved     map[string]time.Time
	retention map[string]time.Duration
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{
		data:      map[string][]byte{},
		saved:     map[string]time.Time{},
		retention: map[string]time.Duration{},
	}
}

func (m *memoryBlobs) SetBlob(_ context.Context, key string, data []byte, storedAt time.Time, retention time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.saved[key] = storedAt
	m.retention[key] = retention
	return nil
}

func (m *memoryBlobs) GetFreshBlob(_ context.Context, key string, now time.Time, maxAge time.Duration) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved, ok := m.saved[key]
	if !ok {
		return nil, false, nil
	}
	if now.Sub(saved) > maxAge {
		delete(m.data, key)
		delete(m.saved, key)
		return nil, false, nil
	}
	return m.data[key], true, nil
}

func TestRedisCacheExpiry(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobs()
	cache := NewRedisCache(blobs, time.Hour)

	now := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	snap := sampleSnapshot()
	require.NoError(t, cache.Set(ctx, snap, []byte("%PDF-r")))
	assert.Equal(t, 2*time.Hour, blobs.retention["invoice:"+Key(snap)])

	now = now.Add(59 * time.Minute)
	data, ok, err := cache.Get(ctx, snap)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("%PDF-r"), data)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Get(ctx, snap)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, blobs.data)
}

func TestGeneratorRendersPDF(t *testing.T) {
	snap := sampleSnapshot()
	snap.BankName = "Citibank"
	snap.TransactionID = "TXN-123"

	pdf, err := NewGenerator("Storefront", "USD").Render(snap)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

type countingRenderer struct {
	calls int
	err   error
}

func (r *countingRenderer) Render(models.OrderSnapshot) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-counted"), nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, models.OrderSnapshot) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}

func (brokenCache) Set(context.Context, models.OrderSnapshot, []byte) error {
	return errors.New("disk gone")
}

func TestCachedRendererUsesCache(t *testing.T) {
	ctx := context.Background()
	cache, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)

	inner := &countingRenderer{}
	r := NewCachedRenderer(inner, cache)

	for i := 0; i < 3; i++ {
		pdf, err := r.Invoice(ctx, sampleSnapshot())
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF-counted"), pdf)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachedRendererToleratesCacheErrors(t *testing.T) {
	inner := &countingRenderer{}
	r := NewCachedRenderer(inner, brokenCache{})

	pdf, err := r.Invoice(context.Background(), sampleSnapshot())
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedRendererPropagatesRenderErrors(t *testing.T) {
	r := NewCachedRenderer(&countingRenderer{err: errors.New("font missing")}, nil)

	_, err := r.Invoice(context.Background(), sampleSnapshot())
	assert.EqualError(t, err, "font missing")
}
