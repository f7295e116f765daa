// Package ingest executes one (product, provider) sync: resolve the provider
// identity if needed, fetch quotes, and record observations. Every provider
// error is classified into the not-found / invalid / transient taxonomy
// before control returns to the caller, so a long-running worker never sees
// an unclassified failure.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grailtrack/market-sync/internal/apperror"
	"github.com/grailtrack/market-sync/internal/inventory"
	"github.com/grailtrack/market-sync/internal/mapping"
	"github.com/grailtrack/market-sync/internal/market"
	"github.com/grailtrack/market-sync/internal/provider"
	"github.com/grailtrack/market-sync/internal/syncjob"
)

type Service struct {
	registry  *provider.Registry
	writer    *market.Writer
	guard     *market.Guard
	tracker   *mapping.Tracker
	links     mapping.Repository
	jobs      syncjob.Repository
	staleness time.Duration
}

func NewService(
	registry *provider.Registry,
	writer *market.Writer,
	guard *market.Guard,
	tracker *mapping.Tracker,
	links mapping.Repository,
	jobs syncjob.Repository,
	staleness time.Duration,
) *Service {
	if staleness <= 0 {
		staleness = market.DefaultStaleness
	}
	return &Service{
		registry:  registry,
		writer:    writer,
		guard:     guard,
		tracker:   tracker,
		links:     links,
		jobs:      jobs,
		staleness: staleness,
	}
}

// Classify buckets a provider error for routing: NotFound and Invalid go to
// the mapping tracker, everything else is transient and retryable.
func Classify(err error) apperror.Code {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return apperror.NotFound
	case provider.IsInvalid(err):
		return apperror.Invalid
	default:
		return apperror.Transient
	}
}

// Process implements syncjob.Processor. Called by the worker pool with a
// claimed (processing) job.
func (s *Service) Process(ctx context.Context, j *syncjob.Job) error {
	fresh, err := s.guard.IsFresh(ctx, j.Provider, j.ProductKey, j.Size, s.staleness)
	if err != nil {
		return s.failJob(ctx, j, err)
	}
	if fresh {
		slog.Info("skipping refresh, data still fresh",
			"provider", j.Provider, "productKey", j.ProductKey, "size", j.Size)
		return s.completeJob(ctx, j, "")
	}

	client, err := s.registry.Get(j.Provider)
	if err != nil {
		return s.failJob(ctx, j, err)
	}

	// Jobs are keyed by product; reuse any item link already established for
	// it so the mapping health record reflects this outcome too.
	link, err := s.links.GetByProduct(ctx, j.Provider, j.ProductKey)
	if err != nil {
		return s.failJob(ctx, j, err)
	}

	providerProductID := ""
	if link != nil && link.Status == mapping.StatusOK {
		providerProductID = link.ProviderProductID
	}
	if providerProductID == "" {
		match, resolveErr := s.resolve(ctx, client, j.ProductKey)
		if resolveErr != nil {
			return s.routeError(ctx, j, link, resolveErr)
		}
		providerProductID = match.ProviderProductID
	}

	written, fetchErr := s.fetchAndWrite(ctx, client, j.ProductKey, providerProductID, j.Size)
	if fetchErr != nil {
		return s.routeError(ctx, j, link, fetchErr)
	}

	if link != nil {
		if err := s.tracker.RecordSuccess(ctx, link.ItemID, j.Provider, j.ProductKey, providerProductID); err != nil {
			slog.Error("record mapping success", "item", link.ItemID, "provider", j.Provider, "error", err)
		}
	}

	slog.Info("refreshed prices",
		"provider", j.Provider, "productKey", j.ProductKey, "size", j.Size, "written", written)
	return s.completeJob(ctx, j, "")
}

// SyncItem refreshes one inventory item against one provider, maintaining the
// item's mapping link on the way. Used by the bulk orchestrator; force
// bypasses the freshness check so a forced sweep always refetches.
func (s *Service) SyncItem(ctx context.Context, it inventory.Item, p provider.Provider, force bool) error {
	if !force {
		fresh, err := s.itemFresh(ctx, it, p)
		if err != nil {
			return err
		}
		if fresh {
			slog.Info("skipping item refresh, data still fresh",
				"provider", p, "sku", it.SKU)
			return nil
		}
	}

	client, err := s.registry.Get(p)
	if err != nil {
		return err
	}

	link, err := s.links.Get(ctx, it.ID, p)
	if err != nil {
		return fmt.Errorf("get link: %w", err)
	}

	// Invalid links require an explicit unlink before they are touched
	// again: re-running a sweep over an ambiguous mapping cannot fix it.
	if link != nil && link.Status == mapping.StatusInvalid {
		return apperror.New(apperror.Invalid, fmt.Sprintf("mapping for item %d on %s is invalid; unlink to remap", it.ID, p))
	}

	providerProductID := ""
	if link != nil && link.Status == mapping.StatusOK {
		providerProductID = link.ProviderProductID
	}
	if providerProductID == "" {
		// Covers unmapped and not_found links: search again so identifier
		// drift re-maps to the current identity.
		match, resolveErr := s.resolve(ctx, client, it.SKU)
		if resolveErr != nil {
			s.recordFailure(ctx, it.ID, p, it.SKU, resolveErr)
			return resolveErr
		}
		providerProductID = match.ProviderProductID
	}

	if _, err := s.fetchAndWrite(ctx, client, it.SKU, providerProductID, ""); err != nil {
		s.recordFailure(ctx, it.ID, p, it.SKU, err)
		return err
	}

	if err := s.tracker.RecordSuccess(ctx, it.ID, p, it.SKU, providerProductID); err != nil {
		return fmt.Errorf("record mapping success: %w", err)
	}
	return nil
}

// itemFresh checks the item's own size when it has one, otherwise any size of
// the product, since a sizeless item syncs the full size run.
func (s *Service) itemFresh(ctx context.Context, it inventory.Item, p provider.Provider) (bool, error) {
	if it.Size != "" {
		return s.guard.IsFresh(ctx, p, it.SKU, it.Size, s.staleness)
	}
	return s.guard.IsProductFresh(ctx, p, it.SKU, s.staleness)
}

// resolve searches the provider catalog for the SKU, preferring an exact
// style-code match and refusing ambiguous multi-match results.
func (s *Service) resolve(ctx context.Context, client provider.Client, sku string) (*provider.CatalogMatch, error) {
	matches, err := client.Search(ctx, sku)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("search %q: %w", sku, provider.ErrNotFound)
	}

	var match *provider.CatalogMatch
	for i := range matches {
		if strings.EqualFold(matches[i].StyleCode, sku) {
			match = &matches[i]
			break
		}
	}
	if match == nil {
		if len(matches) > 1 {
			return nil, &provider.InvalidResponseError{
				Reason: fmt.Sprintf("ambiguous search for %q: %d matches, none exact", sku, len(matches)),
			}
		}
		match = &matches[0]
	}

	retail := match.RetailPrice
	meta := market.Product{
		ProductKey: sku,
		Brand:      match.Brand,
		Model:      match.Model,
		Colorway:   match.Colorway,
		ImageURL:   match.ImageURL,
	}
	if retail > 0 {
		meta.RetailPrice = &retail
	}
	if err := s.writer.UpsertCatalogMetadata(ctx, meta); err != nil {
		slog.Error("upsert catalog metadata", "productKey", sku, "error", err)
	}

	return match, nil
}

func (s *Service) fetchAndWrite(ctx context.Context, client provider.Client, productKey, providerProductID, size string) (int64, error) {
	var snapshots []provider.PriceSnapshot
	if size == "" {
		all, err := client.FetchPrices(ctx, providerProductID)
		if err != nil {
			return 0, err
		}
		snapshots = all
	} else {
		one, err := client.FetchPrice(ctx, providerProductID, size)
		if err != nil {
			return 0, err
		}
		snapshots = []provider.PriceSnapshot{*one}
	}

	var written int64
	for _, snap := range snapshots {
		ok, err := s.writer.UpsertIfNewer(ctx, market.Observation{
			Provider:   snap.Provider,
			ProductKey: productKey,
			Size:       snap.Size,
			Currency:   snap.Currency,
			LowestAsk:  snap.LowestAsk,
			HighestBid: snap.HighestBid,
			LastSale:   snap.LastSale,
			AsOf:       snap.AsOf,
			Meta:       snap.Meta,
		})
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}

// routeError finishes a job according to the error taxonomy: not-found and
// invalid responses are terminal outcomes recorded on the mapping link, only
// transient failures leave the job retryable.
func (s *Service) routeError(ctx context.Context, j *syncjob.Job, link *mapping.Link, err error) error {
	switch Classify(err) {
	case apperror.NotFound:
		if link != nil {
			if trackErr := s.tracker.RecordNotFound(ctx, link.ItemID, j.Provider, j.ProductKey, err); trackErr != nil {
				slog.Error("record mapping not found", "item", link.ItemID, "error", trackErr)
			}
		}
		return s.completeJob(ctx, j, err.Error())
	case apperror.Invalid:
		if link != nil {
			if trackErr := s.tracker.RecordInvalid(ctx, link.ItemID, j.Provider, j.ProductKey, err); trackErr != nil {
				slog.Error("record mapping invalid", "item", link.ItemID, "error", trackErr)
			}
		}
		return s.completeJob(ctx, j, err.Error())
	default:
		return s.failJob(ctx, j, err)
	}
}

func (s *Service) recordFailure(ctx context.Context, itemID int64, p provider.Provider, productKey string, err error) {
	var trackErr error
	switch Classify(err) {
	case apperror.NotFound:
		trackErr = s.tracker.RecordNotFound(ctx, itemID, p, productKey, err)
	case apperror.Invalid:
		trackErr = s.tracker.RecordInvalid(ctx, itemID, p, productKey, err)
	default:
		// Transient failures do not change mapping health.
		return
	}
	if trackErr != nil {
		slog.Error("record mapping failure", "item", itemID, "provider", p, "error", trackErr)
	}
}

func (s *Service) completeJob(ctx context.Context, j *syncjob.Job, note string) error {
	j.Status = syncjob.StatusCompleted
	j.LastError = note
	if err := s.jobs.Update(ctx, j); err != nil {
		slog.Error("update job", "job", j.ID, "error", err)
	}
	return nil
}

func (s *Service) failJob(ctx context.Context, j *syncjob.Job, err error) error {
	j.Status = syncjob.StatusFailed
	j.LastError = err.Error()
	if updateErr := s.jobs.Update(ctx, j); updateErr != nil {
		slog.Error("update job", "job", j.ID, "error", updateErr)
	}
	return err
}
