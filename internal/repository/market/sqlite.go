package market

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/grailtrack/market-sync/internal/market"
	"github.com/grailtrack/market-sync/internal/provider"
)

const observationColumns = `id, provider, product_key, size, currency,
	lowest_ask, highest_bid, last_sale, as_of, meta, created_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends one observation. The unique constraint on
// (provider, product_key, size, currency, as_of) silently drops exact
// duplicates, which keeps replayed worker results harmless.
func (r *Repository) Insert(ctx context.Context, o *domain.Observation) error {
	const query = `INSERT OR IGNORE INTO price_observations
		(provider, product_key, size, currency, lowest_ask, highest_bid, last_sale, as_of, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		string(o.Provider), o.ProductKey, o.Size, o.Currency,
		nullableFloat(o.LowestAsk), nullableFloat(o.HighestBid), nullableFloat(o.LastSale),
		o.AsOf.UTC().Format(time.RFC3339), o.Meta,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}

	o.ID, _ = res.LastInsertId()
	o.CreatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Latest(ctx context.Context, p provider.Provider, productKey, size, currency string) (*domain.Observation, error) {
	query := fmt.Sprintf(`SELECT %s FROM price_observations
		WHERE provider = ? AND product_key = ? AND size = ? AND currency = ?
		ORDER BY as_of DESC LIMIT 1`, observationColumns) //nolint:gosec // column list is a constant

	o, err := scanObservation(r.db.QueryRowContext(ctx, query, string(p), productKey, size, currency))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest observation: %w", err)
	}
	return o, nil
}

func (r *Repository) LatestAny(ctx context.Context, p provider.Provider, productKey, size string) (*domain.Observation, error) {
	query := fmt.Sprintf(`SELECT %s FROM price_observations
		WHERE provider = ? AND product_key = ? AND size = ?
		ORDER BY as_of DESC LIMIT 1`, observationColumns) //nolint:gosec // column list is a constant

	o, err := scanObservation(r.db.QueryRowContext(ctx, query, string(p), productKey, size))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest observation: %w", err)
	}
	return o, nil
}

func (r *Repository) LatestByProduct(ctx context.Context, productKey string) ([]domain.Observation, error) {
	query := fmt.Sprintf(`SELECT %s FROM price_observations o
		WHERE product_key = ? AND as_of = (
			SELECT MAX(i.as_of) FROM price_observations i
			WHERE i.provider = o.provider AND i.product_key = o.product_key
			  AND i.size = o.size AND i.currency = o.currency
		)
		ORDER BY o.size, o.provider, o.currency`, observationColumns) //nolint:gosec // column list is a constant

	rows, err := r.db.QueryContext(ctx, query, productKey)
	if err != nil {
		return nil, fmt.Errorf("latest by product: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectObservations(rows)
}

func (r *Repository) History(ctx context.Context, p provider.Provider, productKey, size string, from, to time.Time, limit int) ([]domain.Observation, error) {
	query := fmt.Sprintf(`SELECT %s FROM price_observations
		WHERE provider = ? AND product_key = ? AND size = ?`, observationColumns) //nolint:gosec // column list is a constant

	args := []any{string(p), productKey, size}
	if !from.IsZero() {
		query += " AND as_of >= ?"
		args = append(args, from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		query += " AND as_of <= ?"
		args = append(args, to.UTC().Format(time.RFC3339))
	}
	query += " ORDER BY as_of DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("observation history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectObservations(rows)
}

func (r *Repository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	const query = `INSERT INTO products (product_key, brand, model, colorway, image_url, retail_price)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_key) DO UPDATE SET
			brand = excluded.brand,
			model = excluded.model,
			colorway = excluded.colorway,
			image_url = excluded.image_url,
			retail_price = excluded.retail_price,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

	_, err := r.db.ExecContext(ctx, query,
		p.ProductKey, p.Brand, p.Model, p.Colorway, p.ImageURL, nullableFloat(p.RetailPrice),
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, productKey string) (*domain.Product, error) {
	const query = `SELECT product_key, brand, model, colorway, image_url, retail_price, created_at, updated_at
		FROM products WHERE product_key = ?`

	p := &domain.Product{}
	var retail sql.NullFloat64
	var createdStr, updatedStr string

	err := r.db.QueryRowContext(ctx, query, productKey).Scan(
		&p.ProductKey, &p.Brand, &p.Model, &p.Colorway, &p.ImageURL,
		&retail, &createdStr, &updatedStr,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	if retail.Valid {
		v := retail.Float64
		p.RetailPrice = &v
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*domain.Observation, error) {
	o := &domain.Observation{}
	var p, asOfStr, createdStr string
	var ask, bid, sale sql.NullFloat64

	if err := row.Scan(
		&o.ID, &p, &o.ProductKey, &o.Size, &o.Currency,
		&ask, &bid, &sale, &asOfStr, &o.Meta, &createdStr,
	); err != nil {
		return nil, err
	}

	o.Provider = provider.Provider(p)
	o.LowestAsk = floatPtr(ask)
	o.HighestBid = floatPtr(bid)
	o.LastSale = floatPtr(sale)
	o.AsOf, _ = time.Parse(time.RFC3339, asOfStr)
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return o, nil
}

func collectObservations(rows *sql.Rows) ([]domain.Observation, error) {
	var observations []domain.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		observations = append(observations, *o)
	}
	return observations, rows.Err()
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
