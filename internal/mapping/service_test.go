package mapping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailtrack/market-sync/internal/provider"
)

type mockRepo struct {
	links  []*Link
	nextID int64
}

func (m *mockRepo) key(itemID int64, p provider.Provider) int {
	for i, l := range m.links {
		if l.ItemID == itemID && l.Provider == p {
			return i
		}
	}
	return -1
}

func (m *mockRepo) Get(_ context.Context, itemID int64, p provider.Provider) (*Link, error) {
	if i := m.key(itemID, p); i >= 0 {
		cp := *m.links[i]
		return &cp, nil
	}
	return nil, nil
}

func (m *mockRepo) GetByProduct(_ context.Context, p provider.Provider, productKey string) (*Link, error) {
	for i := len(m.links) - 1; i >= 0; i-- {
		l := m.links[i]
		if l.ProductKey == productKey && l.Provider == p {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) Upsert(_ context.Context, link *Link) error {
	now := time.Now().UTC()
	if i := m.key(link.ItemID, link.Provider); i >= 0 {
		cp := *link
		cp.ID = m.links[i].ID
		cp.CreatedAt = m.links[i].CreatedAt
		cp.UpdatedAt = now
		m.links[i] = &cp
		return nil
	}
	m.nextID++
	cp := *link
	cp.ID = m.nextID
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.links = append(m.links, &cp)
	return nil
}

func (m *mockRepo) ListByItem(_ context.Context, itemID int64) ([]Link, error) {
	var out []Link
	for _, l := range m.links {
		if l.ItemID == itemID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockRepo) ListByProvider(_ context.Context, p provider.Provider) ([]Link, error) {
	var out []Link
	for _, l := range m.links {
		if l.Provider == p {
			out = append(out, *l)
		}
	}
	return out, nil
}

func TestTracker_SuccessCreatesLink(t *testing.T) {
	repo := &mockRepo{}
	tr := NewTracker(repo)
	ctx := context.Background()

	err := tr.RecordSuccess(ctx, 1, provider.Kixchange, "DZ5485-612", "kx-991")
	require.NoError(t, err)

	link, err := tr.Get(ctx, 1, provider.Kixchange)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, StatusOK, link.Status)
	assert.Equal(t, "kx-991", link.ProviderProductID)
	assert.Equal(t, "DZ5485-612", link.ProductKey)
	assert.NotNil(t, link.LastSyncSuccessAt)
	assert.Empty(t, link.LastSyncError)
}

func TestTracker_NotFoundPreservesLastSuccess(t *testing.T) {
	repo := &mockRepo{}
	tr := NewTracker(repo)
	ctx := context.Background()

	successAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return successAt }
	require.NoError(t, tr.RecordSuccess(ctx, 1, provider.Kixchange, "DZ5485-612", "kx-991"))

	tr.now = time.Now
	require.NoError(t, tr.RecordNotFound(ctx, 1, provider.Kixchange, "DZ5485-612", errors.New("product not found")))

	link, _ := tr.Get(ctx, 1, provider.Kixchange)
	require.NotNil(t, link)
	assert.Equal(t, StatusNotFound, link.Status)
	assert.Equal(t, "product not found", link.LastSyncError)
	require.NotNil(t, link.LastSyncSuccessAt)
	assert.True(t, link.LastSyncSuccessAt.Equal(successAt), "last success timestamp must survive not_found")
	assert.False(t, link.Status.Authoritative())

	// A later success recovers the link.
	require.NoError(t, tr.RecordSuccess(ctx, 1, provider.Kixchange, "DZ5485-612", "kx-991"))
	link, _ = tr.Get(ctx, 1, provider.Kixchange)
	assert.Equal(t, StatusOK, link.Status)
	assert.Empty(t, link.LastSyncError)
}

func TestTracker_InvalidRequiresUnlink(t *testing.T) {
	repo := &mockRepo{}
	tr := NewTracker(repo)
	ctx := context.Background()

	require.NoError(t, tr.RecordSuccess(ctx, 1, provider.Peerflip, "DZ5485-612", "air-max-90"))
	require.NoError(t, tr.RecordInvalid(ctx, 1, provider.Peerflip, "DZ5485-612", errors.New("ambiguous match")))

	link, _ := tr.Get(ctx, 1, provider.Peerflip)
	assert.Equal(t, StatusInvalid, link.Status)
	assert.Equal(t, "ambiguous match", link.LastSyncError)

	// Invalid does not auto-recover; the operator unlinks, then remaps.
	require.NoError(t, tr.Unlink(ctx, 1, provider.Peerflip))
	link, _ = tr.Get(ctx, 1, provider.Peerflip)
	require.NotNil(t, link)
	assert.Equal(t, StatusUnmapped, link.Status)
	assert.Empty(t, link.ProviderProductID)
	assert.Empty(t, link.LastSyncError)

	require.NoError(t, tr.RecordSuccess(ctx, 1, provider.Peerflip, "DZ5485-612", "air-max-90-v2"))
	link, _ = tr.Get(ctx, 1, provider.Peerflip)
	assert.Equal(t, StatusOK, link.Status)
	assert.Equal(t, "air-max-90-v2", link.ProviderProductID)
}

func TestTracker_UnlinkMissingIsNoop(t *testing.T) {
	repo := &mockRepo{}
	tr := NewTracker(repo)

	require.NoError(t, tr.Unlink(context.Background(), 42, provider.Kixchange))
	assert.Empty(t, repo.links)
}

func TestStatus_Authoritative(t *testing.T) {
	assert.True(t, StatusOK.Authoritative())
	assert.False(t, StatusNotFound.Authoritative())
	assert.False(t, StatusInvalid.Authoritative())
	assert.False(t, StatusUnmapped.Authoritative())
}
