package market

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

const metaConsignment = "consignment"

// Quote is one provider's contribution to a unified row.
type Quote struct {
	Currency   string    `json:"currency"`
	LowestAsk  *float64  `json:"lowestAsk,omitempty"`
	HighestBid *float64  `json:"highestBid,omitempty"`
	LastSale   *float64  `json:"lastSale,omitempty"`
	AsOf       time.Time `json:"asOf"`
}

// Row is one per-size view over all providers, derived at read time from the
// latest observations. Never stored.
type Row struct {
	Size   string                      `json:"size"`
	Quotes map[provider.Provider]Quote `json:"quotes"`

	numeric bool
	sortKey float64
	order   int
}

// Has reports whether the given provider contributed to this row.
func (r Row) Has(p provider.Provider) bool {
	_, ok := r.Quotes[p]
	return ok
}

// BestPrice is the resolved "best available price" for a row.
type BestPrice struct {
	Provider provider.Provider `json:"provider"`
	Price    float64           `json:"price"`
	Currency string            `json:"currency"`
}

// Service builds the unified per-size market view.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// UnifiedMarketData merges every provider's latest observations for the
// product into one row per canonical size. Sizes with no actionable price
// field from any provider are dropped as catalog noise.
func (s *Service) UnifiedMarketData(ctx context.Context, req UnifiedRequest) ([]Row, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	observations, err := s.repo.LatestByProduct(ctx, req.ProductKey)
	if err != nil {
		return nil, fmt.Errorf("latest observations: %w", err)
	}

	currency := regionCurrency[req.Region]

	rows := make(map[string]*Row)
	order := 0
	for _, o := range observations {
		if currency != "" && o.Currency != currency {
			continue
		}
		if !req.Consignment && o.Meta == metaConsignment {
			continue
		}

		key, sortKey, numeric := canonicalSize(o.Size)
		row, ok := rows[key]
		if !ok {
			row = &Row{
				Size:    key,
				Quotes:  make(map[provider.Provider]Quote),
				numeric: numeric,
				sortKey: sortKey,
				order:   order,
			}
			order++
			rows[key] = row
		}

		existing, seen := row.Quotes[o.Provider]
		if seen && !betterQuote(o, existing) {
			continue
		}
		row.Quotes[o.Provider] = Quote{
			Currency:   o.Currency,
			LowestAsk:  o.LowestAsk,
			HighestBid: o.HighestBid,
			LastSale:   o.LastSale,
			AsOf:       o.AsOf,
		}
	}

	merged := make([]Row, 0, len(rows))
	for _, row := range rows {
		if !rowActionable(*row) {
			continue
		}
		merged = append(merged, *row)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		switch {
		case a.numeric && b.numeric:
			return a.sortKey < b.sortKey
		case a.numeric != b.numeric:
			return a.numeric // numeric sizes first, labels last
		default:
			return a.order < b.order
		}
	})
	return merged, nil
}

// Best resolves the best available price for a row: providers are ranked by
// the fixed preference order, not by price; within one provider the freshest
// USD-preferred quote was already chosen at merge time.
func (s *Service) Best(row Row) (*BestPrice, bool) {
	for _, p := range provider.PreferenceOrder {
		q, ok := row.Quotes[p]
		if !ok {
			continue
		}
		switch {
		case q.LowestAsk != nil:
			return &BestPrice{Provider: p, Price: *q.LowestAsk, Currency: q.Currency}, true
		case q.LastSale != nil:
			return &BestPrice{Provider: p, Price: *q.LastSale, Currency: q.Currency}, true
		case q.HighestBid != nil:
			return &BestPrice{Provider: p, Price: *q.HighestBid, Currency: q.Currency}, true
		}
	}
	return nil, false
}

// History exposes the raw observation time series for sparkline consumers.
func (s *Service) History(ctx context.Context, req HistoryRequest) ([]Observation, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 90
	}
	return s.repo.History(ctx, req.Provider, req.ProductKey, req.Size, req.From, req.To, limit)
}

func (s *Service) GetProduct(ctx context.Context, productKey string) (*Product, error) {
	return s.repo.GetProduct(ctx, productKey)
}

// betterQuote prefers USD over other currencies, then the more recent asOf.
// Applies only when one provider reports the same canonical size more than
// once (multi-currency, or labels that collapse together).
func betterQuote(o Observation, existing Quote) bool {
	if (o.Currency == "USD") != (existing.Currency == "USD") {
		return o.Currency == "USD"
	}
	return o.AsOf.After(existing.AsOf)
}

func rowActionable(r Row) bool {
	for _, q := range r.Quotes {
		if q.LowestAsk != nil || q.HighestBid != nil || q.LastSale != nil {
			return true
		}
	}
	return false
}

// canonicalSize strips everything but digits and the decimal point, so labels
// differing only by a gender/region suffix ("12" vs "12W") join on one key.
// Known trade-off: genuinely distinct size runs that share digits collapse
// together too. Labels with no digits keep their trimmed text and sort after
// all numeric sizes.
func canonicalSize(label string) (key string, sortKey float64, numeric bool) {
	var b strings.Builder
	for _, r := range label {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return strings.TrimSpace(label), 0, false
	}
	n, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return strings.TrimSpace(label), 0, false
	}
	return digits, n, true
}

var regionCurrency = map[string]string{
	"":   "",
	"US": "USD",
	"EU": "EUR",
	"GB": "GBP",
	"JP": "JPY",
}
