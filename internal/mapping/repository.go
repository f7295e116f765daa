package mapping

import (
	"context"

	"github.com/grailtrack/market-sync/internal/provider"
)

type Repository interface {
	// Get returns the link for (itemID, provider), or nil if none exists.
	Get(ctx context.Context, itemID int64, p provider.Provider) (*Link, error)
	// GetByProduct returns the most recently updated link for
	// (provider, productKey), or nil. Used by job processing, which is keyed
	// by product rather than item.
	GetByProduct(ctx context.Context, p provider.Provider, productKey string) (*Link, error)
	// Upsert inserts or replaces the link for (itemID, provider).
	Upsert(ctx context.Context, l *Link) error
	ListByItem(ctx context.Context, itemID int64) ([]Link, error)
	ListByProvider(ctx context.Context, p provider.Provider) ([]Link, error)
}
