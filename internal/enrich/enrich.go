// Package enrich joins raw external cart lines with resolved product
// snapshots to build a display-ready cart.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nareda9819/easymart-v2-sub000/internal/cache"
	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
)

// unknownTitle is rendered when neither the snapshot nor the line's own
// inline fields carry a title.
const unknownTitle = "Unknown Product"

// SnapshotResolver is the slice of the product resolver enrichment needs.
type SnapshotResolver interface {
	GetByID(ctx context.Context, id string) (*domain.ProductSnapshot, bool)
}

// Service recomputes the display cart on every read. The external commerce
// system remains the source of truth; nothing here is persisted.
type Service struct {
	resolver SnapshotResolver
	cache    cache.SnapshotCache
	sfg      singleflight.Group
	logger   *zap.Logger
}

func NewService(resolver SnapshotResolver, snapshots cache.SnapshotCache, logger *zap.Logger) *Service {
	return &Service{resolver: resolver, cache: snapshots, logger: logger}
}

// EnrichCart resolves every line concurrently and joins the results in
// upstream order. Per-line resolution never fails; a line that cannot be
// resolved degrades to its own inline fields or to the unknown-product
// placeholder, so the whole join never rejects.
func (s *Service) EnrichCart(ctx context.Context, lines []domain.CartLine) domain.Cart {
	items := make([]domain.EnrichedCartLine, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	for i, line := range lines {
		g.Go(func() error {
			items[i] = s.enrichLine(gctx, line)
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	total := 0.0
	for _, item := range items {
		count += item.Quantity
		price, err := strconv.ParseFloat(item.Price, 64)
		if err != nil {
			continue
		}
		total += price * float64(item.Quantity)
	}

	return domain.Cart{
		Items:     items,
		ItemCount: count,
		Total:     fmt.Sprintf("%.2f", total),
	}
}

// enrichLine composes one display line, giving snapshot fields priority over
// the line's inline fields.
func (s *Service) enrichLine(ctx context.Context, line domain.CartLine) domain.EnrichedCartLine {
	out := domain.EnrichedCartLine{
		ProductID:  line.ProductID,
		CartItemID: line.CartItemID,
		Title:      line.Name,
		Price:      line.Price,
		Quantity:   line.Quantity,
		Image:      line.Image,
	}

	if snap := s.snapshot(ctx, line.ProductID); snap != nil {
		if snap.Name != "" {
			out.Title = snap.Name
		}
		if snap.Price != "" {
			out.Price = snap.Price
		}
		if img := snap.Image(); img != "" {
			out.Image = img
		}
	}

	if out.Title == "" {
		out.Title = unknownTitle
	}
	if out.Price == "" {
		out.Price = "0"
	}
	return out
}

// snapshot consults the TTL cache first, then the resolver. Concurrent
// lookups for the same product collapse into one upstream call.
func (s *Service) snapshot(ctx context.Context, productID string) *domain.ProductSnapshot {
	if productID == "" {
		return nil
	}

	if snap, err := s.cache.Get(ctx, productID); err == nil {
		return snap
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Debug("snapshot cache get failed", zap.String("product_id", productID), zap.Error(err))
	}

	v, _, _ := s.sfg.Do(productID, func() (any, error) {
		snap, ok := s.resolver.GetByID(ctx, productID)
		if !ok {
			return (*domain.ProductSnapshot)(nil), nil
		}
		if err := s.cache.Set(ctx, productID, snap); err != nil {
			s.logger.Debug("snapshot cache set failed", zap.String("product_id", productID), zap.Error(err))
		}
		return snap, nil
	})
	return v.(*domain.ProductSnapshot)
}
