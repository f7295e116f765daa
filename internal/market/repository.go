package market

import (
	"context"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

type Repository interface {
	// Insert appends one observation. Duplicate (provider, productKey, size,
	// currency, asOf) rows are ignored by the store.
	Insert(ctx context.Context, o *Observation) error
	// Latest returns the most recent observation for the exact currency, or
	// nil if none exists.
	Latest(ctx context.Context, p provider.Provider, productKey, size, currency string) (*Observation, error)
	// LatestAny returns the most recent observation across currencies, or nil.
	LatestAny(ctx context.Context, p provider.Provider, productKey, size string) (*Observation, error)
	// LatestByProduct returns the latest observation per
	// (provider, size, currency) for the product.
	LatestByProduct(ctx context.Context, productKey string) ([]Observation, error)
	// History returns observations newest-first for trend consumers.
	History(ctx context.Context, p provider.Provider, productKey, size string, from, to time.Time, limit int) ([]Observation, error)

	UpsertProduct(ctx context.Context, pr *Product) error
	GetProduct(ctx context.Context, productKey string) (*Product, error)
}
