package syncjob

import (
	"context"
	"time"
)

type Repository interface {
	// Insert creates the job unless another job with the same dedupe key is
	// already pending or processing. Returns false when deduplicated away.
	Insert(ctx context.Context, j *Job) (bool, error)
	// InsertMany batch-inserts, skipping deduplicated keys, in a single
	// statement. Returns the number actually created.
	InsertMany(ctx context.Context, jobs []*Job) (int64, error)
	// ExistingActiveKeys returns the subset of keys that currently have a
	// pending or processing job, in one query.
	ExistingActiveKeys(ctx context.Context, keys []string) (map[string]bool, error)
	Update(ctx context.Context, j *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	List(ctx context.Context, p string, productKey string, status Status) ([]Job, error)
	// ClaimPending atomically transitions the best eligible pending job to
	// processing (highest priority first, then oldest) and returns it, or nil
	// when nothing is claimable. Single-statement CAS: two workers can never
	// claim the same job.
	ClaimPending(ctx context.Context) (*Job, error)
	// RetryFailed resets up to maxCount failed jobs for the provider updated
	// since the given time back to pending, bumping attempts and priority and
	// clearing the error. Returns the number reset.
	RetryFailed(ctx context.Context, p string, maxCount int, since time.Time, priorityBump int) (int64, error)
	// RecoverStale re-queues jobs stuck in processing, e.g. after a crash.
	RecoverStale(ctx context.Context) (int64, error)
}
