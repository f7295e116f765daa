package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

// Tracker is the single writer of mapping status. All transitions go through
// it; no other component touches mappingStatus directly.
type Tracker struct {
	repo Repository
	now  func() time.Time
}

func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo, now: time.Now}
}

// RecordSuccess marks the link resolvable: status ok, success timestamp set,
// error cleared. Creates the link if it does not exist yet
// (unmapped → ok on first successful search+fetch).
func (t *Tracker) RecordSuccess(ctx context.Context, itemID int64, p provider.Provider, productKey, providerProductID string) error {
	link, err := t.load(ctx, itemID, p, productKey)
	if err != nil {
		return err
	}

	now := t.now().UTC()
	link.ProviderProductID = providerProductID
	link.Status = StatusOK
	link.LastSyncSuccessAt = &now
	link.LastSyncError = ""

	return t.save(ctx, link)
}

// RecordNotFound marks the provider-side identity as gone. The last success
// timestamp is deliberately preserved: "last known good" is diagnostic gold
// when an identifier drifts.
func (t *Tracker) RecordNotFound(ctx context.Context, itemID int64, p provider.Provider, productKey string, syncErr error) error {
	link, err := t.load(ctx, itemID, p, productKey)
	if err != nil {
		return err
	}

	link.Status = StatusNotFound
	link.LastSyncError = errString(syncErr)

	slog.Warn("mapping not found", "item", itemID, "provider", p, "productKey", productKey)
	return t.save(ctx, link)
}

// RecordInvalid marks a response that could not be classified as success or
// not-found: malformed payload, ambiguous multi-match, and similar.
func (t *Tracker) RecordInvalid(ctx context.Context, itemID int64, p provider.Provider, productKey string, syncErr error) error {
	link, err := t.load(ctx, itemID, p, productKey)
	if err != nil {
		return err
	}

	link.Status = StatusInvalid
	link.LastSyncError = errString(syncErr)

	slog.Warn("mapping invalid", "item", itemID, "provider", p, "productKey", productKey, "error", link.LastSyncError)
	return t.save(ctx, link)
}

// Unlink resets the link to unmapped, discarding the provider identity. The
// explicit remap action that recovers invalid links.
func (t *Tracker) Unlink(ctx context.Context, itemID int64, p provider.Provider) error {
	link, err := t.repo.Get(ctx, itemID, p)
	if err != nil {
		return fmt.Errorf("get link: %w", err)
	}
	if link == nil {
		return nil
	}

	link.ProviderProductID = ""
	link.Status = StatusUnmapped
	link.LastSyncError = ""

	return t.save(ctx, link)
}

func (t *Tracker) Get(ctx context.Context, itemID int64, p provider.Provider) (*Link, error) {
	return t.repo.Get(ctx, itemID, p)
}

func (t *Tracker) ListByItem(ctx context.Context, itemID int64) ([]Link, error) {
	return t.repo.ListByItem(ctx, itemID)
}

func (t *Tracker) load(ctx context.Context, itemID int64, p provider.Provider, productKey string) (*Link, error) {
	link, err := t.repo.Get(ctx, itemID, p)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	if link == nil {
		link = &Link{
			ItemID:   itemID,
			Provider: p,
			Status:   StatusUnmapped,
		}
	}
	if productKey != "" {
		link.ProductKey = productKey
	}
	return link, nil
}

func (t *Tracker) save(ctx context.Context, link *Link) error {
	if err := t.repo.Upsert(ctx, link); err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
