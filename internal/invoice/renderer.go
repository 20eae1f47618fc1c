package invoice

import (
	"context"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Renderer turns a snapshot into PDF bytes
type Renderer interface {
	Render(snap models.OrderSnapshot) ([]byte, error)
}

// CachedRenderer consults the cache before rendering. Cache failures are
// logged and treated as misses.
type CachedRenderer struct {
	renderer Renderer
	cache    Cache
	logger   *zap.Logger
}

func NewCachedRenderer(renderer Renderer, cache Cache) *CachedRenderer {
	return &CachedRenderer{
		renderer: renderer,
		cache:    cache,
		logger:   util.Named("invoice"),
	}
}

// Invoice returns the PDF for snap, from cache when possible
func (r *CachedRenderer) Invoice(ctx context.Context, snap models.OrderSnapshot) ([]byte, error) {
	if r.cache != nil {
		pdf, ok, err := r.cache.Get(ctx, snap)
		switch {
		case err != nil:
			util.InvoiceCacheLookupsTotal.WithLabelValues("error").Inc()
			r.logger.Warn("Invoice cache read failed", zap.Int64("order_id", snap.Order.ID), zap.Error(err))
		case ok:
			util.InvoiceCacheLookupsTotal.WithLabelValues("hit").Inc()
			return pdf, nil
		default:
			util.InvoiceCacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	start := time.Now()
	pdf, err := r.renderer.Render(snap)
	util.InvoiceRenderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, snap, pdf); err != nil {
			r.logger.Warn("Invoice cache write failed", zap.Int64("order_id", snap.Order.ID), zap.Error(err))
		}
	}
	return pdf, nil
}
