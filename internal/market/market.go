package market

import (
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

// Observation is one timestamped price fact from one provider for one
// (productKey, size, currency). The observations table is an append-only time
// series; "latest" is always a derived query, never an in-place update.
type Observation struct {
	ID         int64             `json:"id"`
	Provider   provider.Provider `json:"provider"`
	ProductKey string            `json:"productKey"`
	Size       string            `json:"size"`
	Currency   string            `json:"currency"`
	LowestAsk  *float64          `json:"lowestAsk,omitempty"`
	HighestBid *float64          `json:"highestBid,omitempty"`
	LastSale   *float64          `json:"lastSale,omitempty"`
	AsOf       time.Time         `json:"asOf"`
	Meta       string            `json:"meta,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Actionable reports whether the observation carries at least one usable
// price field.
func (o Observation) Actionable() bool {
	return o.LowestAsk != nil || o.HighestBid != nil || o.LastSale != nil
}

// Product holds mutable catalog metadata keyed by productKey. Unlike
// observations these fields have no temporal ordering and are updated in
// place.
type Product struct {
	ProductKey  string    `json:"productKey"`
	Brand       string    `json:"brand"`
	Model       string    `json:"model"`
	Colorway    string    `json:"colorway"`
	ImageURL    string    `json:"imageUrl"`
	RetailPrice *float64  `json:"retailPrice,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
