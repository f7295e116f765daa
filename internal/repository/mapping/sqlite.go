package mapping

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/grailtrack/market-sync/internal/mapping"
	"github.com/grailtrack/market-sync/internal/provider"
)

const linkColumns = `id, item_id, provider, product_key, provider_product_id,
	mapping_status, last_sync_success_at, last_sync_error, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, itemID int64, p provider.Provider) (*domain.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM mapping_links
		WHERE item_id = ? AND provider = ?`, linkColumns) //nolint:gosec // column list is a constant

	l, err := scanLink(r.db.QueryRowContext(ctx, query, itemID, string(p)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

func (r *Repository) GetByProduct(ctx context.Context, p provider.Provider, productKey string) (*domain.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM mapping_links
		WHERE provider = ? AND product_key = ?
		ORDER BY updated_at DESC, id DESC LIMIT 1`, linkColumns) //nolint:gosec // column list is a constant

	l, err := scanLink(r.db.QueryRowContext(ctx, query, string(p), productKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get link by product: %w", err)
	}
	return l, nil
}

func (r *Repository) Upsert(ctx context.Context, l *domain.Link) error {
	const query = `INSERT INTO mapping_links
		(item_id, provider, product_key, provider_product_id, mapping_status, last_sync_success_at, last_sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, provider) DO UPDATE SET
			product_key = excluded.product_key,
			provider_product_id = excluded.provider_product_id,
			mapping_status = excluded.mapping_status,
			last_sync_success_at = excluded.last_sync_success_at,
			last_sync_error = excluded.last_sync_error,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

	_, err := r.db.ExecContext(ctx, query,
		l.ItemID, string(l.Provider), l.ProductKey,
		nullableString(l.ProviderProductID), string(l.Status),
		nullableTime(l.LastSyncSuccessAt), nullableString(l.LastSyncError),
	)
	if err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}

	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) ListByItem(ctx context.Context, itemID int64) ([]domain.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM mapping_links
		WHERE item_id = ? ORDER BY provider`, linkColumns) //nolint:gosec // column list is a constant

	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("list links by item: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectLinks(rows)
}

func (r *Repository) ListByProvider(ctx context.Context, p provider.Provider) ([]domain.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM mapping_links
		WHERE provider = ? ORDER BY item_id`, linkColumns) //nolint:gosec // column list is a constant

	rows, err := r.db.QueryContext(ctx, query, string(p))
	if err != nil {
		return nil, fmt.Errorf("list links by provider: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectLinks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*domain.Link, error) {
	l := &domain.Link{}
	var p, status, createdStr, updatedStr string
	var providerProductID, successAt, syncErr sql.NullString

	if err := row.Scan(
		&l.ID, &l.ItemID, &p, &l.ProductKey, &providerProductID,
		&status, &successAt, &syncErr, &createdStr, &updatedStr,
	); err != nil {
		return nil, err
	}

	l.Provider = provider.Provider(p)
	l.Status = domain.Status(status)
	l.ProviderProductID = providerProductID.String
	l.LastSyncError = syncErr.String
	if successAt.Valid {
		t, err := time.Parse(time.RFC3339, successAt.String)
		if err == nil {
			l.LastSyncSuccessAt = &t
		}
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return l, nil
}

func collectLinks(rows *sql.Rows) ([]domain.Link, error) {
	var links []domain.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, *l)
	}
	return links, rows.Err()
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
