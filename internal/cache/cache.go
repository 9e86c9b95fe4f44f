package cache

import (
	"context"
	"errors"

	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
)

// SnapshotCache stores resolved product snapshots for a short TTL so cart
// enrichment does not hammer the org on every read. Entries are idempotent
// re-derivations of the same upstream truth, so last-write-wins is fine.
type SnapshotCache interface {
	Get(ctx context.Context, productID string) (*domain.ProductSnapshot, error)
	Set(ctx context.Context, productID string, snap *domain.ProductSnapshot) error
}

var ErrCacheMiss = errors.New("cache miss")
