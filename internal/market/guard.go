package market

import (
	"context"
	"fmt"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

// DefaultStaleness is the hot-path freshness threshold; callers with looser
// requirements pass their own.
const DefaultStaleness = 10 * time.Minute

// Guard answers whether stored data for a key is fresh enough to skip a
// provider fetch. Read-only: it never mutates state.
type Guard struct {
	repo Repository
	now  func() time.Time
}

func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo, now: time.Now}
}

// IsFresh reports whether the most recent observation for the key is younger
// than threshold. No observation at all means not fresh.
func (g *Guard) IsFresh(ctx context.Context, p provider.Provider, productKey, size string, threshold time.Duration) (bool, error) {
	if threshold <= 0 {
		threshold = DefaultStaleness
	}

	latest, err := g.repo.LatestAny(ctx, p, productKey, size)
	if err != nil {
		return false, fmt.Errorf("latest observation: %w", err)
	}
	if latest == nil {
		return false, nil
	}
	return g.now().Sub(latest.AsOf) < threshold, nil
}

// IsProductFresh reports whether any size of the product carries a fresh
// observation from p. Sweeps fetch whole products, so per-size freshness
// would be too narrow a question for them.
func (g *Guard) IsProductFresh(ctx context.Context, p provider.Provider, productKey string, threshold time.Duration) (bool, error) {
	if threshold <= 0 {
		threshold = DefaultStaleness
	}

	latest, err := g.repo.LatestByProduct(ctx, productKey)
	if err != nil {
		return false, fmt.Errorf("latest observations: %w", err)
	}
	for _, o := range latest {
		if o.Provider == p && g.now().Sub(o.AsOf) < threshold {
			return true, nil
		}
	}
	return false, nil
}
