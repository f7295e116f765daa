package mapping

import (
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

type Status string

const (
	// StatusOK: the provider-side identity resolved on the last attempt.
	StatusOK Status = "ok"
	// StatusNotFound: the provider confirmed the identifier no longer exists.
	StatusNotFound Status = "not_found"
	// StatusInvalid: the last response was neither a clean success nor a
	// classifiable not-found. Never auto-recovers; requires an explicit remap.
	StatusInvalid Status = "invalid"
	// StatusUnmapped: no provider identity has been established yet.
	StatusUnmapped Status = "unmapped"
)

// Authoritative reports whether price data sourced through a link in this
// state may be presented as current. not_found and invalid links usually mean
// the provider identifier changed or the item was delisted; surfacing a
// cached price then would be silently wrong.
func (s Status) Authoritative() bool {
	return s == StatusOK
}

// Link binds a local inventory item to a provider's catalog identity and
// tracks whether that identity is currently resolvable.
type Link struct {
	ID                int64             `json:"id"`
	ItemID            int64             `json:"itemId"`
	Provider          provider.Provider `json:"provider"`
	ProductKey        string            `json:"productKey"`
	ProviderProductID string            `json:"providerProductId,omitempty"`
	Status            Status            `json:"mappingStatus"`
	LastSyncSuccessAt *time.Time        `json:"lastSyncSuccessAt,omitempty"`
	LastSyncError     string            `json:"lastSyncError,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}
