package inventory

import (
	"context"
	"testing"

	domain "github.com/grailtrack/market-sync/internal/inventory"
	"github.com/grailtrack/market-sync/internal/platform/sqlite"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreate_And_Get(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	it := &domain.Item{
		SKU:      "DZ5485-612",
		Brand:    "Jordan",
		Model:    "Air Jordan 1 Retro High OG",
		Size:     "10",
		Nickname: "lucky greens",
	}

	if err := repo.Create(ctx, it); err != nil {
		t.Fatalf("create: %v", err)
	}
	if it.ID == 0 {
		t.Fatal("expected non-zero ID")
	}

	got, err := repo.Get(ctx, it.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected item")
	}
	if got.SKU != "DZ5485-612" {
		t.Errorf("expected DZ5485-612, got %s", got.SKU)
	}
	if got.Nickname != "lucky greens" {
		t.Errorf("expected nickname, got %q", got.Nickname)
	}
}

func TestGet_Missing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)

	got, err := repo.Get(context.Background(), 999)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing item, got %+v", got)
	}
}

func TestList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	for _, sku := range []string{"DZ5485-612", "DD1391-100", "CT8527-016"} {
		if err := repo.Create(ctx, &domain.Item{SKU: sku}); err != nil {
			t.Fatal(err)
		}
	}

	items, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].SKU != "DZ5485-612" {
		t.Errorf("expected insertion order, got %s first", items[0].SKU)
	}
}
