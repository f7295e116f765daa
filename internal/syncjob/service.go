package syncjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

// FreshnessChecker reports whether stored prices for a key are recent enough
// that a refresh would be redundant.
type FreshnessChecker interface {
	IsFresh(ctx context.Context, p provider.Provider, productKey, size string, threshold time.Duration) (bool, error)
}

// Service is the enqueuer and retry controller. It is the only component that
// creates jobs or resurrects failed ones; workers own the
// processing→terminal transitions.
type Service struct {
	repo      Repository
	notify    func() // optional: wake worker pool
	freshness FreshnessChecker
	staleness time.Duration
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetNotify sets a callback invoked when new pending work is created.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

// SetFreshness makes Enqueue skip keys whose data is younger than threshold,
// so redundant refreshes never reach the queue.
func (s *Service) SetFreshness(fc FreshnessChecker, threshold time.Duration) {
	s.freshness = fc
	s.staleness = threshold
}

// Enqueue schedules one refresh. Returns nil (not an error) when an
// equivalent job is already pending or processing, or when the key's data is
// still fresh: already-satisfied is a success signal.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	j := req.job()
	if s.freshness != nil {
		fresh, err := s.freshness.IsFresh(ctx, j.Provider, j.ProductKey, j.Size, s.staleness)
		if err != nil {
			// A broken freshness read must not block scheduling; the worker
			// checks again before fetching.
			slog.Warn("freshness check failed, enqueueing anyway",
				"provider", j.Provider, "productKey", j.ProductKey, "error", err)
		} else if fresh {
			slog.Info("skipping enqueue, data still fresh",
				"provider", j.Provider, "productKey", j.ProductKey, "size", j.Size)
			return nil, nil
		}
	}

	created, err := s.repo.Insert(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	if !created {
		return nil, nil
	}

	if s.notify != nil {
		s.notify()
	}
	return j, nil
}

// EnqueueMany schedules a batch. Existing dedupe keys are pre-fetched in one
// query and filtered client-side before a single batch insert, so the query
// count stays O(1) for large batches.
func (s *Service) EnqueueMany(ctx context.Context, reqs []EnqueueRequest) (created, skipped int64, err error) {
	if len(reqs) == 0 {
		return 0, 0, nil
	}

	keys := make([]string, 0, len(reqs))
	jobs := make([]*Job, 0, len(reqs))
	for _, req := range reqs {
		if appErr := req.Validate(); appErr != nil {
			return 0, 0, appErr
		}
		j := req.job()
		keys = append(keys, j.DedupeKey)
		jobs = append(jobs, j)
	}

	existing, err := s.repo.ExistingActiveKeys(ctx, keys)
	if err != nil {
		return 0, 0, fmt.Errorf("existing dedupe keys: %w", err)
	}

	fresh := make([]*Job, 0, len(jobs))
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if existing[j.DedupeKey] || seen[j.DedupeKey] {
			continue
		}
		seen[j.DedupeKey] = true
		fresh = append(fresh, j)
	}

	n, err := s.repo.InsertMany(ctx, fresh)
	if err != nil {
		return 0, 0, fmt.Errorf("insert jobs: %w", err)
	}

	if n > 0 && s.notify != nil {
		s.notify()
	}
	return n, int64(len(reqs)) - n, nil
}

// RetryFailed resurrects recent failed jobs for a provider. The window
// bounds the blast radius of retry storms; notBefore stays null so retries
// are immediately eligible.
func (s *Service) RetryFailed(ctx context.Context, req RetryRequest) (int64, error) {
	if appErr := req.Validate(); appErr != nil {
		return 0, appErr
	}

	maxCount := req.MaxCount
	if maxCount == 0 {
		maxCount = 50
	}
	sinceMinutes := req.SinceMinutes
	if sinceMinutes == 0 {
		sinceMinutes = 60
	}

	since := time.Now().UTC().Add(-time.Duration(sinceMinutes) * time.Minute)
	n, err := s.repo.RetryFailed(ctx, string(req.Provider), maxCount, since, RetryPriorityBump)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}

	if n > 0 {
		slog.Info("re-queued failed jobs", "provider", req.Provider, "count", n)
		if s.notify != nil {
			s.notify()
		}
	}
	return n, nil
}

func (s *Service) RecoverStaleJobs(ctx context.Context) error {
	n, err := s.repo.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("re-queued interrupted jobs", "count", n)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, req GetJobRequest) (*Job, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	return s.repo.Get(ctx, req.ID)
}

func (s *Service) List(ctx context.Context, req ListJobsRequest) ([]Job, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	return s.repo.List(ctx, string(req.Provider), req.ProductKey, req.Status)
}
