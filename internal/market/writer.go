package market

import (
	"context"
	"fmt"
	"log/slog"
)

// Writer records price observations idempotently: a late-arriving stale
// result from a slow worker never clobbers a fresher observation already
// recorded for the same key.
type Writer struct {
	repo Repository
}

func NewWriter(repo Repository) *Writer {
	return &Writer{repo: repo}
}

// UpsertIfNewer appends the observation unless the store already holds one at
// least as fresh for the same (provider, productKey, size, currency). Returns
// whether a row was written. The freshness check is scoped per currency so a
// multi-region sweep carrying identical timestamps does not reject its own
// sibling rows.
func (w *Writer) UpsertIfNewer(ctx context.Context, o Observation) (bool, error) {
	latest, err := w.repo.Latest(ctx, o.Provider, o.ProductKey, o.Size, o.Currency)
	if err != nil {
		return false, fmt.Errorf("latest observation: %w", err)
	}
	if latest != nil && !latest.AsOf.Before(o.AsOf) {
		return false, nil
	}

	if err := w.repo.Insert(ctx, &o); err != nil {
		return false, fmt.Errorf("insert observation: %w", err)
	}

	slog.Debug("recorded observation",
		"provider", o.Provider,
		"productKey", o.ProductKey,
		"size", o.Size,
		"currency", o.Currency,
	)
	return true, nil
}

// UpsertCatalogMetadata creates or updates descriptive product fields. These
// carry no temporal ordering, so last write wins.
func (w *Writer) UpsertCatalogMetadata(ctx context.Context, p Product) error {
	if p.ProductKey == "" {
		return fmt.Errorf("product key is required")
	}
	if err := w.repo.UpsertProduct(ctx, &p); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}
