// Package peerflip implements the provider client for the Peerflip peer
// marketplace. Peerflip has no bid side; the lowest active listing per size
// maps to the ask and sold listings supply the last-sale figure. Listings
// sold on consignment are flagged in the snapshot meta.
package peerflip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/grailtrack/market-sync/internal/provider"
)

const (
	defaultBaseURL = "https://peerflip.market"
	userAgent      = "grailtrack-market-sync/1.0"
	excerptLimit   = 200

	// MetaConsignment marks snapshots sourced from consignment listings.
	MetaConsignment = "consignment"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type Option func(*Client)

func WithClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func (c *Client) Provider() provider.Provider { return provider.Peerflip }

type searchResponse struct {
	Products []struct {
		Slug     string  `json:"slug"`
		SKU      string  `json:"sku"`
		Brand    string  `json:"brand"`
		Name     string  `json:"name"`
		Colorway string  `json:"colorway"`
		Image    string  `json:"image"`
		Retail   float64 `json:"retail"`
	} `json:"products"`
}

type offersResponse struct {
	Slug     string `json:"slug"`
	Currency string `json:"currency"`
	Offers   []struct {
		Size        string   `json:"size"`
		Price       *float64 `json:"price"`
		SoldLast    *float64 `json:"soldLast"`
		Consignment bool     `json:"consignment"`
		UpdatedAt   string   `json:"updatedAt"`
	} `json:"offers"`
}

func (c *Client) Search(ctx context.Context, sku string) ([]provider.CatalogMatch, error) {
	u := fmt.Sprintf("%s/api/search?sku=%s", c.baseURL, url.QueryEscape(sku))

	var resp searchResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	matches := make([]provider.CatalogMatch, 0, len(resp.Products))
	for _, p := range resp.Products {
		if p.Slug == "" {
			return nil, &provider.InvalidResponseError{Reason: "search result missing slug"}
		}
		matches = append(matches, provider.CatalogMatch{
			Provider:          provider.Peerflip,
			ProviderProductID: p.Slug,
			StyleCode:         p.SKU,
			Brand:             p.Brand,
			Model:             p.Name,
			Colorway:          p.Colorway,
			ImageURL:          p.Image,
			RetailPrice:       p.Retail,
		})
	}
	return matches, nil
}

func (c *Client) FetchPrice(ctx context.Context, providerProductID, size string) (*provider.PriceSnapshot, error) {
	snapshots, err := c.FetchPrices(ctx, providerProductID)
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		if snapshots[i].Size == size {
			return &snapshots[i], nil
		}
	}
	return nil, fmt.Errorf("size %s: %w", size, provider.ErrNotFound)
}

func (c *Client) FetchPrices(ctx context.Context, providerProductID string) ([]provider.PriceSnapshot, error) {
	u := fmt.Sprintf("%s/api/products/%s/offers", c.baseURL, url.PathEscape(providerProductID))

	var resp offersResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Slug != providerProductID {
		return nil, &provider.InvalidResponseError{
			Reason:  "offers response for unexpected product",
			Excerpt: resp.Slug,
		}
	}
	if resp.Currency == "" {
		return nil, &provider.InvalidResponseError{Reason: "offers response missing currency"}
	}

	snapshots := make([]provider.PriceSnapshot, 0, len(resp.Offers))
	for _, o := range resp.Offers {
		asOf, err := time.Parse(time.RFC3339, o.UpdatedAt)
		if err != nil {
			return nil, &provider.InvalidResponseError{
				Reason:  "unparseable offer timestamp",
				Excerpt: o.UpdatedAt,
			}
		}
		meta := ""
		if o.Consignment {
			meta = MetaConsignment
		}
		snapshots = append(snapshots, provider.PriceSnapshot{
			Provider:          provider.Peerflip,
			ProviderProductID: providerProductID,
			Size:              o.Size,
			Currency:          resp.Currency,
			LowestAsk:         o.Price,
			LastSale:          o.SoldLast,
			AsOf:              asOf.UTC(),
			Meta:              meta,
		})
	}
	return snapshots, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("peerflip request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return provider.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("peerflip: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &provider.InvalidResponseError{
			Reason:  "malformed json",
			Excerpt: excerpt(body),
		}
	}
	return nil
}

func excerpt(body []byte) string {
	if len(body) > excerptLimit {
		body = body[:excerptLimit]
	}
	return string(body)
}
