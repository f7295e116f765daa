package job

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
	domain "github.com/grailtrack/market-sync/internal/syncjob"
)

const jobColumns = `id, provider, product_key, size, dedupe_key, priority,
	status, attempts, not_before, last_error, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert relies on the partial unique index over active dedupe keys:
// INSERT OR IGNORE loses the race (or the plain dedupe check) benignly and
// reports created=false.
func (r *Repository) Insert(ctx context.Context, j *domain.Job) (bool, error) {
	const query = `INSERT OR IGNORE INTO sync_jobs
		(provider, product_key, size, dedupe_key, priority, status, attempts, not_before)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		string(j.Provider), j.ProductKey, j.Size, j.DedupeKey,
		j.Priority, string(j.Status), j.Attempts, nullableTime(j.NotBefore),
	)
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}

	j.ID, _ = res.LastInsertId()
	j.CreatedAt = time.Now().UTC()
	j.UpdatedAt = j.CreatedAt
	return true, nil
}

func (r *Repository) InsertMany(ctx context.Context, jobs []*domain.Job) (int64, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(jobs))
	args := make([]any, 0, len(jobs)*8)
	for i, j := range jobs {
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			string(j.Provider), j.ProductKey, j.Size, j.DedupeKey,
			j.Priority, string(j.Status), j.Attempts, nullableTime(j.NotBefore),
		)
	}

	query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
		`INSERT OR IGNORE INTO sync_jobs
		(provider, product_key, size, dedupe_key, priority, status, attempts, not_before)
		VALUES %s`,
		strings.Join(placeholders, ", "),
	)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) ExistingActiveKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return map[string]bool{}, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = k
	}

	query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
		`SELECT dedupe_key FROM sync_jobs
		WHERE status IN ('pending', 'processing') AND dedupe_key IN (%s)`,
		strings.Join(placeholders, ", "),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("existing active keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan dedupe key: %w", err)
		}
		existing[key] = true
	}
	return existing, rows.Err()
}

func (r *Repository) Update(ctx context.Context, j *domain.Job) error {
	const query = `UPDATE sync_jobs SET status = ?, attempts = ?, priority = ?,
		last_error = ?, not_before = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		string(j.Status), j.Attempts, j.Priority,
		nullableString(j.LastError), nullableTime(j.NotBefore), j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM sync_jobs WHERE id = ?`, jobColumns) //nolint:gosec // column list is a constant

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *Repository) List(ctx context.Context, p, productKey string, status domain.Status) ([]domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM sync_jobs WHERE 1=1`, jobColumns) //nolint:gosec // column list is a constant

	var args []any
	if p != "" {
		query += " AND provider = ?"
		args = append(args, p)
	}
	if productKey != "" {
		query += " AND product_key = ?"
		args = append(args, productKey)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id DESC LIMIT 100"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ClaimPending is a single-statement compare-and-swap: the UPDATE only lands
// if the selected job is still pending, so two workers can never claim the
// same job. Highest priority wins, FIFO within a priority.
func (r *Repository) ClaimPending(ctx context.Context) (*domain.Job, error) {
	const query = `UPDATE sync_jobs
		SET status = 'processing', updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = (
			SELECT id FROM sync_jobs
			WHERE status = 'pending'
			  AND (not_before IS NULL OR not_before <= strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1
		) AND status = 'pending'
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}

	return r.Get(ctx, id)
}

// RetryFailed resets recent failed jobs to pending with bumped attempts and
// priority. Dedupe keys that already have an active job are skipped, and only
// the newest failed job per key is resurrected, so the active-key invariant
// holds.
func (r *Repository) RetryFailed(ctx context.Context, p string, maxCount int, since time.Time, priorityBump int) (int64, error) {
	const query = `UPDATE sync_jobs
		SET status = 'pending', attempts = attempts + 1, priority = priority + ?,
		    last_error = NULL,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id IN (
			SELECT MAX(id) FROM sync_jobs
			WHERE status = 'failed' AND provider = ? AND updated_at >= ?
			  AND dedupe_key NOT IN (
				SELECT dedupe_key FROM sync_jobs WHERE status IN ('pending', 'processing')
			  )
			GROUP BY dedupe_key
			ORDER BY MAX(updated_at) DESC
			LIMIT ?
		)`

	res, err := r.db.ExecContext(ctx, query,
		priorityBump, p, since.UTC().Format(time.RFC3339), maxCount,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) RecoverStale(ctx context.Context) (int64, error) {
	const query = `UPDATE sync_jobs SET status = 'pending', last_error = NULL,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'processing'`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	j := &domain.Job{}
	var p, status, createdStr, updatedStr string
	var size, notBefore, lastErr sql.NullString

	if err := row.Scan(
		&j.ID, &p, &j.ProductKey, &size, &j.DedupeKey, &j.Priority,
		&status, &j.Attempts, &notBefore, &lastErr, &createdStr, &updatedStr,
	); err != nil {
		return nil, err
	}

	j.Provider = provider.Provider(p)
	j.Status = domain.Status(status)
	j.Size = size.String
	j.LastError = lastErr.String
	if notBefore.Valid {
		t, err := time.Parse(time.RFC3339, notBefore.String)
		if err == nil {
			j.NotBefore = &t
		}
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return j, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
