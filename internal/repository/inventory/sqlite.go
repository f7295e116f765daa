package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/grailtrack/market-sync/internal/inventory"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, it *domain.Item) error {
	const query = `INSERT INTO items (sku, brand, model, size, nickname)
		VALUES (?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, it.SKU, it.Brand, it.Model, it.Size, it.Nickname)
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	it.ID, _ = res.LastInsertId()
	it.CreatedAt = time.Now().UTC()
	it.UpdatedAt = it.CreatedAt
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Item, error) {
	const query = `SELECT id, sku, brand, model, size, nickname, created_at, updated_at
		FROM items WHERE id = ?`

	it, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Item, error) {
	const query = `SELECT id, sku, brand, model, size, nickname, created_at, updated_at
		FROM items ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	it := &domain.Item{}
	var createdStr, updatedStr string

	if err := row.Scan(&it.ID, &it.SKU, &it.Brand, &it.Model, &it.Size, &it.Nickname, &createdStr, &updatedStr); err != nil {
		return nil, err
	}

	it.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	it.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return it, nil
}
