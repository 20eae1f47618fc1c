// Package invoice renders order invoices as PDF and caches them by a hash of
// the order fields that appear on the document.
package invoice

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"checkout-service/internal/models"
)

// DefaultTTL is how long a cached invoice stays valid
const DefaultTTL = time.Hour

// Cache stores rendered invoices. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, snap models.OrderSnapshot) ([]byte, bool, error)
	Set(ctx context.Context, snap models.OrderSnapshot, pdf []byte) error
}

type keyProjection struct {
	ID    int64               `json:"id"`
	Total string              `json:"total"`
	Date  string              `json:"date"`
	Lines []keyProjectionLine `json:"lines"`
}

type keyProjectionLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// Key returns the MD5 hex digest of the order id, total, date and each
// line's product id, name, quantity and price. Other snapshot fields do not
// affect it.
func Key(snap models.OrderSnapshot) string {
	p := keyProjection{
		ID:    snap.Order.ID,
		Total: snap.Order.TotalAmount.StringFixed(2),
		Date:  snap.Order.OrderDate.UTC().Format(time.RFC3339),
		Lines: make([]keyProjectionLine, 0, len(snap.Lines)),
	}
	for _, l := range snap.Lines {
		p.Lines = append(p.Lines, keyProjectionLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     l.Price.StringFixed(2),
		})
	}

	// a struct of strings and ints always marshals
	data, _ := json.Marshal(p)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
