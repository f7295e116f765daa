package syncjob

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

// --- in-memory repo mirroring the sqlite dedupe/claim semantics ---

type mockRepo struct {
	mu     sync.Mutex
	jobs   []*Job
	nextID int64
}

func newMockRepo() *mockRepo { return &mockRepo{} }

func (m *mockRepo) activeKeyLocked(key string) bool {
	for _, j := range m.jobs {
		if j.DedupeKey == key && (j.Status == StatusPending || j.Status == StatusProcessing) {
			return true
		}
	}
	return false
}

func (m *mockRepo) Insert(_ context.Context, j *Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeKeyLocked(j.DedupeKey) {
		return false, nil
	}
	m.nextID++
	j.ID = m.nextID
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.UpdatedAt = j.CreatedAt
	cp := *j
	m.jobs = append(m.jobs, &cp)
	return true, nil
}

func (m *mockRepo) InsertMany(ctx context.Context, jobs []*Job) (int64, error) {
	var n int64
	for _, j := range jobs {
		created, err := m.Insert(ctx, j)
		if err != nil {
			return n, err
		}
		if created {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ExistingActiveKeys(_ context.Context, keys []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[string]bool)
	for _, k := range keys {
		if m.activeKeyLocked(k) {
			existing[k] = true
		}
	}
	return existing, nil
}

func (m *mockRepo) Update(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.jobs {
		if existing.ID == j.ID {
			cp := *j
			cp.UpdatedAt = time.Now().UTC()
			m.jobs[i] = &cp
			return nil
		}
	}
	return nil
}

func (m *mockRepo) Get(_ context.Context, id int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) List(_ context.Context, p, productKey string, status Status) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if p != "" && string(j.Provider) != p {
			continue
		}
		if productKey != "" && j.ProductKey != productKey {
			continue
		}
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (m *mockRepo) ClaimPending(_ context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var best *Job
	for _, j := range m.jobs {
		if j.Status != StatusPending {
			continue
		}
		if j.NotBefore != nil && j.NotBefore.After(now) {
			continue
		}
		if best == nil || j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.CreatedAt.Before(best.CreatedAt)) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = StatusProcessing
	best.UpdatedAt = now
	cp := *best
	return &cp, nil
}

func (m *mockRepo) RetryFailed(_ context.Context, p string, maxCount int, since time.Time, priorityBump int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if int(n) >= maxCount {
			break
		}
		if j.Status != StatusFailed || string(j.Provider) != p || j.UpdatedAt.Before(since) {
			continue
		}
		if m.activeKeyLocked(j.DedupeKey) {
			continue
		}
		j.Status = StatusPending
		j.Attempts++
		j.Priority += priorityBump
		j.LastError = ""
		j.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

func (m *mockRepo) RecoverStale(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == StatusProcessing {
			j.Status = StatusPending
			j.LastError = ""
			n++
		}
	}
	return n, nil
}

// --- enqueuer ---

type stubFreshness struct {
	fresh bool
	err   error
	calls int
	key   string
}

func (s *stubFreshness) IsFresh(_ context.Context, _ provider.Provider, productKey, _ string, _ time.Duration) (bool, error) {
	s.calls++
	s.key = productKey
	return s.fresh, s.err
}

func TestEnqueue_NormalizesProductKey(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	j, err := svc.Enqueue(ctx, EnqueueRequest{Provider: provider.Kixchange, ProductKey: "dz5485-612", Size: "10"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if j == nil {
		t.Fatal("expected job to be created")
	}
	if j.ProductKey != "DZ5485-612" {
		t.Errorf("expected upper-cased product key, got %q", j.ProductKey)
	}
	if j.DedupeKey != "kixchange|DZ5485-612|10" {
		t.Errorf("unexpected dedupe key %q", j.DedupeKey)
	}

	// Casing differences must hit the same dedupe key.
	dup, err := svc.Enqueue(ctx, EnqueueRequest{Provider: provider.Kixchange, ProductKey: "DZ5485-612", Size: "10"})
	if err != nil {
		t.Fatalf("enqueue dup: %v", err)
	}
	if dup != nil {
		t.Error("expected mixed-case enqueue to deduplicate")
	}
}

func TestEnqueue_SkipsFreshKeys(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	checker := &stubFreshness{fresh: true}
	svc.SetFreshness(checker, 10*time.Minute)
	ctx := context.Background()

	req := EnqueueRequest{Provider: provider.Kixchange, ProductKey: "dz5485-612", Size: "10"}

	j, err := svc.Enqueue(ctx, req)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if j != nil {
		t.Error("expected fresh key to be skipped")
	}
	if len(repo.jobs) != 0 {
		t.Errorf("expected no job rows, got %d", len(repo.jobs))
	}
	if checker.key != "DZ5485-612" {
		t.Errorf("freshness must be checked with the normalized key, got %q", checker.key)
	}

	checker.fresh = false
	j, err = svc.Enqueue(ctx, req)
	if err != nil {
		t.Fatalf("enqueue stale: %v", err)
	}
	if j == nil {
		t.Error("expected stale key to enqueue")
	}
}

func TestEnqueue_FreshnessErrorDoesNotBlock(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	svc.SetFreshness(&stubFreshness{err: context.DeadlineExceeded}, 10*time.Minute)
	ctx := context.Background()

	j, err := svc.Enqueue(ctx, EnqueueRequest{Provider: provider.Kixchange, ProductKey: "DZ5485-612"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if j == nil {
		t.Error("expected job despite freshness check failure")
	}
}

func TestEnqueue_Dedup(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	req := EnqueueRequest{Provider: provider.Kixchange, ProductKey: "DZ5485-612", Size: "10"}

	j, err := svc.Enqueue(ctx, req)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if j == nil {
		t.Fatal("expected job to be created")
	}
	if j.Priority != PriorityBackground {
		t.Errorf("expected default priority %d, got %d", PriorityBackground, j.Priority)
	}

	// Same key while pending: deduplicated, not an error.
	dup, err := svc.Enqueue(ctx, req)
	if err != nil {
		t.Fatalf("enqueue dup: %v", err)
	}
	if dup != nil {
		t.Error("expected dedup to return nil job")
	}

	// After the first job reaches a terminal state a new one is allowed.
	j.Status = StatusCompleted
	if err := repo.Update(ctx, j); err != nil {
		t.Fatal(err)
	}
	again, err := svc.Enqueue(ctx, req)
	if err != nil {
		t.Fatalf("enqueue after complete: %v", err)
	}
	if again == nil {
		t.Error("expected new job after terminal state")
	}
}

func TestEnqueue_Validation(t *testing.T) {
	svc := NewService(newMockRepo())

	if _, err := svc.Enqueue(context.Background(), EnqueueRequest{Provider: "ebay", ProductKey: "DZ5485-612"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := svc.Enqueue(context.Background(), EnqueueRequest{Provider: provider.Kixchange, ProductKey: "X"}); err == nil {
		t.Error("expected error for short product key")
	}
}

func TestEnqueueMany(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	// Pre-existing pending job occupies one key.
	if _, err := svc.Enqueue(ctx, EnqueueRequest{Provider: provider.Kixchange, ProductKey: "DZ5485-612", Size: "10"}); err != nil {
		t.Fatal(err)
	}

	reqs := []EnqueueRequest{
		{Provider: provider.Kixchange, ProductKey: "DZ5485-612", Size: "10"}, // dup of existing
		{Provider: provider.Kixchange, ProductKey: "DZ5485-612", Size: "11"},
		{Provider: provider.Peerflip, ProductKey: "DZ5485-612", Size: "10"},
		{Provider: provider.Peerflip, ProductKey: "DZ5485-612", Size: "10"}, // dup within batch
	}

	created, skipped, err := svc.EnqueueMany(ctx, reqs)
	if err != nil {
		t.Fatalf("enqueueMany: %v", err)
	}
	if created != 2 {
		t.Errorf("expected 2 created, got %d", created)
	}
	if skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", skipped)
	}
}

func TestRetryFailed(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	j, _ := svc.Enqueue(ctx, EnqueueRequest{Provider: provider.Kixchange, ProductKey: "DZ5485-612", Size: "10"})
	j.Status = StatusFailed
	j.LastError = "kixchange: unexpected status 503"
	_ = repo.Update(ctx, j)

	n, err := svc.RetryFailed(ctx, RetryRequest{Provider: provider.Kixchange})
	if err != nil {
		t.Fatalf("retryFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 retried, got %d", n)
	}

	got, _ := repo.Get(ctx, j.ID)
	if got.Status != StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected attempts 1, got %d", got.Attempts)
	}
	if got.Priority != PriorityBackground+RetryPriorityBump {
		t.Errorf("expected bumped priority, got %d", got.Priority)
	}
	if got.LastError != "" {
		t.Errorf("expected cleared error, got %q", got.LastError)
	}

	// Different provider: nothing to retry.
	n, _ = svc.RetryFailed(ctx, RetryRequest{Provider: provider.Peerflip})
	if n != 0 {
		t.Errorf("expected 0 retried for other provider, got %d", n)
	}
}

func TestDedupeKey(t *testing.T) {
	if got := DedupeKey(provider.Kixchange, "DZ5485-612", "10"); got != "kixchange|DZ5485-612|10" {
		t.Errorf("unexpected dedupe key %q", got)
	}
	if got := DedupeKey(provider.Peerflip, "DZ5485-612", ""); got != "peerflip|DZ5485-612|" {
		t.Errorf("unexpected dedupe key %q", got)
	}
}
