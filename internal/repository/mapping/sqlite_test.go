package mapping

import (
	"context"
	"testing"
	"time"

	domain "github.com/grailtrack/market-sync/internal/mapping"
	"github.com/grailtrack/market-sync/internal/platform/sqlite"
	"github.com/grailtrack/market-sync/internal/provider"
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

func TestUpsert_And_Get(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	successAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := &domain.Link{
		ItemID:            1,
		Provider:          provider.Kixchange,
		ProductKey:        "DZ5485-612",
		ProviderProductID: "kx-991",
		Status:            domain.StatusOK,
		LastSyncSuccessAt: &successAt,
	}
	if err := repo.Upsert(ctx, l); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.Get(ctx, 1, provider.Kixchange)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected link")
	}
	if got.Status != domain.StatusOK {
		t.Errorf("expected ok, got %s", got.Status)
	}
	if got.ProviderProductID != "kx-991" {
		t.Errorf("expected kx-991, got %s", got.ProviderProductID)
	}
	if got.LastSyncSuccessAt == nil || !got.LastSyncSuccessAt.Equal(successAt) {
		t.Errorf("expected success timestamp %v, got %v", successAt, got.LastSyncSuccessAt)
	}

	// Upsert on the same (item, provider) replaces in place.
	l.Status = domain.StatusNotFound
	l.LastSyncError = "product not found"
	if err := repo.Upsert(ctx, l); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, _ = repo.Get(ctx, 1, provider.Kixchange)
	if got.Status != domain.StatusNotFound {
		t.Errorf("expected not_found, got %s", got.Status)
	}
	if got.LastSyncError != "product not found" {
		t.Errorf("expected error preserved, got %q", got.LastSyncError)
	}

	links, err := repo.ListByItem(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("expected single row after conflict update, got %d", len(links))
	}
}

func TestGet_Missing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)

	got, err := repo.Get(context.Background(), 42, provider.Peerflip)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing link, got %+v", got)
	}
}

func TestGetByProduct(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	// Two items sharing a product key on the same provider.
	for _, itemID := range []int64{1, 2} {
		if err := repo.Upsert(ctx, &domain.Link{
			ItemID:            itemID,
			Provider:          provider.Kixchange,
			ProductKey:        "DZ5485-612",
			ProviderProductID: "kx-991",
			Status:            domain.StatusOK,
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.GetByProduct(ctx, provider.Kixchange, "DZ5485-612")
	if err != nil {
		t.Fatalf("get by product: %v", err)
	}
	if got == nil {
		t.Fatal("expected link")
	}
	if got.ItemID != 2 {
		t.Errorf("expected most recently updated link, got item %d", got.ItemID)
	}

	missing, err := repo.GetByProduct(ctx, provider.Peerflip, "DZ5485-612")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for other provider, got %+v", missing)
	}
}

func TestListByItem_And_ListByProvider(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	for _, p := range provider.PreferenceOrder {
		if err := repo.Upsert(ctx, &domain.Link{
			ItemID:     1,
			Provider:   p,
			ProductKey: "DZ5485-612",
			Status:     domain.StatusUnmapped,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.Upsert(ctx, &domain.Link{
		ItemID:     2,
		Provider:   provider.Kixchange,
		ProductKey: "DD1391-100",
		Status:     domain.StatusUnmapped,
	}); err != nil {
		t.Fatal(err)
	}

	byItem, err := repo.ListByItem(ctx, 1)
	if err != nil {
		t.Fatalf("list by item: %v", err)
	}
	if len(byItem) != 2 {
		t.Errorf("expected 2 links for item 1, got %d", len(byItem))
	}

	byProvider, err := repo.ListByProvider(ctx, provider.Kixchange)
	if err != nil {
		t.Fatalf("list by provider: %v", err)
	}
	if len(byProvider) != 2 {
		t.Errorf("expected 2 kixchange links, got %d", len(byProvider))
	}
}
