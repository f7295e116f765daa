package syncjob

import (
	"fmt"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Priority convention. Policy, not enforced by the type: workers simply claim
// the highest priority first.
const (
	PriorityBackground = 100 // batch refresh
	PriorityHot        = 150 // item newly added to holdings
	PriorityManual     = 200 // user-initiated refresh
)

// RetryPriorityBump is added on retry so resurrected jobs are not starved by
// fresh background work.
const RetryPriorityBump = 20

// Job is one unit of scheduled price-refresh work. At most one job per
// DedupeKey may be pending or processing at a time; the store enforces this
// with a partial unique index.
type Job struct {
	ID         int64             `json:"id"`
	Provider   provider.Provider `json:"provider"`
	ProductKey string            `json:"productKey"`
	Size       string            `json:"size,omitempty"` // empty = all sizes
	DedupeKey  string            `json:"dedupeKey"`
	Priority   int               `json:"priority"`
	Status     Status            `json:"status"`
	Attempts   int               `json:"attempts"`
	NotBefore  *time.Time        `json:"notBefore,omitempty"`
	LastError  string            `json:"lastError,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func DedupeKey(p provider.Provider, productKey, size string) string {
	return fmt.Sprintf("%s|%s|%s", p, productKey, size)
}
