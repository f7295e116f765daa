// Package bulksync drives a synchronous, rate-limited sweep over the
// inventory. The sweep is deliberately sequential with a fixed inter-item
// delay: total duration is O(items x delay), a politeness trade-off callers
// must size their timeouts for.
package bulksync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grailtrack/market-sync/internal/inventory"
	"github.com/grailtrack/market-sync/internal/mapping"
	"github.com/grailtrack/market-sync/internal/provider"
)

const (
	defaultDelay      = 300 * time.Millisecond
	defaultMappingAge = 6 * time.Hour
	errorCap          = 50
)

// Syncer performs one (item, provider) sync. force skips the freshness
// short-circuit so a forced sweep always refetches.
type Syncer interface {
	SyncItem(ctx context.Context, it inventory.Item, p provider.Provider, force bool) error
}

type ItemError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Summary is the hard contract of a sweep: returned complete even on total
// success, and success + failed == completed == total always holds.
type Summary struct {
	RunID       string      `json:"runId"`
	Total       int         `json:"total"`
	Completed   int         `json:"completed"`
	Success     int         `json:"success"`
	Failed      int         `json:"failed"`
	Errors      []ItemError `json:"errors"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

type Progress struct {
	RunID      string  `json:"runId"`
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Success    int     `json:"success"`
	Failed     int     `json:"failed"`
	CurrentKey string  `json:"currentKey"`
	Percent    float64 `json:"percent"`
}

// ProgressFunc receives progress after every item. The callback decides how
// often to persist; errors are swallowed because progress persistence must
// never abort a sweep.
type ProgressFunc func(p Progress) error

type Orchestrator struct {
	items     inventory.Repository
	links     mapping.Repository
	syncer    Syncer
	providers []provider.Provider
	tracker   *Tracker

	delay      time.Duration
	mappingAge time.Duration
	now        func() time.Time
}

func NewOrchestrator(
	items inventory.Repository,
	links mapping.Repository,
	syncer Syncer,
	providers []provider.Provider,
	delay time.Duration,
) *Orchestrator {
	if delay <= 0 {
		delay = defaultDelay
	}
	return &Orchestrator{
		items:      items,
		links:      links,
		syncer:     syncer,
		providers:  providers,
		tracker:    NewTracker(),
		delay:      delay,
		mappingAge: defaultMappingAge,
		now:        time.Now,
	}
}

// Tracker exposes in-flight progress for status polling.
func (o *Orchestrator) Tracker() *Tracker { return o.tracker }

type target struct {
	item      inventory.Item
	providers []provider.Provider
}

// Run sweeps the selected entries item by item. One bad item never aborts the
// sweep: its error lands in the bounded error list and the loop moves on.
// Cancellation is checked before every item; on cancel the summary reflects
// the work done so far and ctx.Err() is returned alongside it.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, onProgress ProgressFunc) (*Summary, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	targets, err := o.selectTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:     uuid.NewString(),
		Total:     len(targets),
		Errors:    []ItemError{},
		StartedAt: o.now().UTC(),
	}
	o.tracker.begin(summary.RunID, summary.Total)
	defer func() {
		now := o.now().UTC()
		summary.CompletedAt = &now
		o.tracker.finish(summary)
	}()

	slog.Info("bulk sync started",
		"run", summary.RunID, "mode", req.Mode, "platform", req.Platform, "total", summary.Total)

	force := req.Mode == ModeForce

	var cancelErr error
	for i, tgt := range targets {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}

		var itemErr error
		for _, p := range tgt.providers {
			if err := o.syncer.SyncItem(ctx, tgt.item, p, force); err != nil {
				itemErr = errors.Join(itemErr, err)
			}
		}

		summary.Completed++
		if itemErr != nil {
			summary.Failed++
			if len(summary.Errors) < errorCap {
				summary.Errors = append(summary.Errors, ItemError{
					Key:   tgt.item.SKU,
					Error: itemErr.Error(),
				})
			}
			slog.Warn("bulk sync item failed", "run", summary.RunID, "sku", tgt.item.SKU, "error", itemErr)
		} else {
			summary.Success++
		}

		progress := o.progress(summary, tgt.item.SKU)
		o.tracker.update(progress)
		if onProgress != nil {
			// Best-effort persistence: a failing progress sink must not
			// abort the sweep.
			_ = onProgress(progress)
		}

		if i < len(targets)-1 {
			select {
			case <-ctx.Done():
				cancelErr = ctx.Err()
			case <-time.After(o.delay):
			}
			if cancelErr != nil {
				break
			}
		}
	}

	slog.Info("bulk sync finished",
		"run", summary.RunID,
		"completed", summary.Completed,
		"success", summary.Success,
		"failed", summary.Failed,
	)
	return summary, cancelErr
}

// selectTargets resolves the (item, provider) pairs a mode applies to.
func (o *Orchestrator) selectTargets(ctx context.Context, req RunRequest) ([]target, error) {
	scope := o.providers
	if req.Platform != PlatformBoth {
		scope = []provider.Provider{provider.Provider(req.Platform)}
	}

	items, err := o.items.List(ctx)
	if err != nil {
		return nil, err
	}

	linksByProvider := make(map[provider.Provider]map[int64]mapping.Link, len(scope))
	for _, p := range scope {
		links, err := o.links.ListByProvider(ctx, p)
		if err != nil {
			return nil, err
		}
		byItem := make(map[int64]mapping.Link, len(links))
		for _, l := range links {
			byItem[l.ItemID] = l
		}
		linksByProvider[p] = byItem
	}

	cutoff := o.now().UTC().Add(-o.mappingAge)
	targets := make([]target, 0, len(items))
	for _, it := range items {
		var applicable []provider.Provider
		for _, p := range scope {
			link, linked := linksByProvider[p][it.ID]
			switch req.Mode {
			case ModeForce:
				applicable = append(applicable, p)
			case ModeMissing:
				if !linked || link.Status == mapping.StatusUnmapped {
					applicable = append(applicable, p)
				}
			case ModeAll:
				if !linked || link.UpdatedAt.Before(cutoff) {
					applicable = append(applicable, p)
				}
			}
		}
		if len(applicable) > 0 {
			targets = append(targets, target{item: it, providers: applicable})
		}
	}
	return targets, nil
}

func (o *Orchestrator) progress(s *Summary, currentKey string) Progress {
	percent := 0.0
	if s.Total > 0 {
		percent = float64(s.Completed) / float64(s.Total) * 100
	}
	return Progress{
		RunID:      s.RunID,
		Total:      s.Total,
		Completed:  s.Completed,
		Success:    s.Success,
		Failed:     s.Failed,
		CurrentKey: currentKey,
		Percent:    percent,
	}
}
