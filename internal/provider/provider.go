// Package provider defines the boundary between the sync engine and external
// marketplace APIs. Concrete clients live in subpackages; everything past this
// boundary works with the normalized shapes below and never sees raw provider
// payloads.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type Provider string

const (
	Kixchange Provider = "kixchange"
	Peerflip  Provider = "peerflip"
)

// PreferenceOrder ranks providers for "best available price" resolution.
// This is a policy constant: when several providers quote the same size, the
// earliest provider in this list wins regardless of price.
var PreferenceOrder = []Provider{Kixchange, Peerflip}

func Valid(p Provider) bool {
	for _, known := range PreferenceOrder {
		if p == known {
			return true
		}
	}
	return false
}

// CatalogMatch is one normalized search hit from a provider's catalog.
type CatalogMatch struct {
	Provider         Provider
	ProviderProductID string
	StyleCode        string
	Brand            string
	Model            string
	Colorway         string
	ImageURL         string
	RetailPrice      float64
}

// PriceSnapshot is one normalized per-size market quote from a provider.
type PriceSnapshot struct {
	Provider         Provider
	ProviderProductID string
	Size             string
	Currency         string
	LowestAsk        *float64
	HighestBid       *float64
	LastSale         *float64
	AsOf             time.Time
	Meta             string
}

type Client interface {
	Provider() Provider
	Search(ctx context.Context, sku string) ([]CatalogMatch, error)
	FetchPrice(ctx context.Context, providerProductID, size string) (*PriceSnapshot, error)
	FetchPrices(ctx context.Context, providerProductID string) ([]PriceSnapshot, error)
}

// ErrNotFound means the provider confirmed the identifier does not resolve.
// Expected during normal catalog drift; callers route it to the mapping
// tracker, not the retry path.
var ErrNotFound = errors.New("provider: product not found")

// InvalidResponseError marks a provider response that is neither a clean
// success nor a classifiable not-found. Excerpt carries a bounded slice of the
// raw payload for diagnosis.
type InvalidResponseError struct {
	Reason  string
	Excerpt string
}

func (e *InvalidResponseError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("provider: invalid response: %s", e.Reason)
	}
	return fmt.Sprintf("provider: invalid response: %s: %q", e.Reason, e.Excerpt)
}

func IsInvalid(err error) bool {
	var ie *InvalidResponseError
	return errors.As(err, &ie)
}

type Registry struct {
	mu      sync.RWMutex
	clients map[Provider]Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[Provider]Client),
	}
}

func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Provider()] = c
}

func (r *Registry) Get(p Provider) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("client not registered for provider: %s", p)
	}
	return c, nil
}

func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]Provider, 0, len(r.clients))
	for _, p := range PreferenceOrder {
		if _, ok := r.clients[p]; ok {
			providers = append(providers, p)
		}
	}
	return providers
}
