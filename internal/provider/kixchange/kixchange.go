// Package kixchange implements the provider client for the Kixchange
// resale exchange. Market data is served per currency region; FetchPrices
// fans out over the configured currencies and merges the results.
package kixchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grailtrack/market-sync/internal/provider"
)

const (
	defaultBaseURL = "https://api.kixchange.com"
	userAgent      = "grailtrack-market-sync/1.0"
	excerptLimit   = 200
)

var defaultCurrencies = []string{"USD", "EUR", "GBP", "JPY"}

// Client fetches catalog and market data from the Kixchange API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	currencies []string
	workers    int
}

// New creates a Client with the given options applied.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		currencies: defaultCurrencies,
		workers:    4,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithClient sets the HTTP client.
func WithClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithAPIKey sets the API key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithCurrencies sets the currency regions fetched by FetchPrices.
func WithCurrencies(currencies []string) Option {
	return func(c *Client) { c.currencies = currencies }
}

// WithWorkers sets the concurrency for parallel per-currency fetches.
func WithWorkers(n int) Option {
	return func(c *Client) { c.workers = n }
}

func (c *Client) Provider() provider.Provider { return provider.Kixchange }

type searchResponse struct {
	Results []struct {
		ID          string `json:"id"`
		StyleID     string `json:"styleId"`
		Brand       string `json:"brand"`
		Title       string `json:"title"`
		Colorway    string `json:"colorway"`
		RetailPrice float64 `json:"retailPrice"`
		Media       struct {
			ImageURL string `json:"imageUrl"`
		} `json:"media"`
	} `json:"results"`
}

type marketResponse struct {
	ProductID string `json:"productId"`
	Currency  string `json:"currency"`
	Variants  []struct {
		Size       string   `json:"size"`
		LowestAsk  *float64 `json:"lowestAsk"`
		HighestBid *float64 `json:"highestBid"`
		LastSale   *float64 `json:"lastSale"`
		UpdatedAt  string   `json:"updatedAt"`
	} `json:"variants"`
}

// Search queries the catalog by style code / SKU.
func (c *Client) Search(ctx context.Context, sku string) ([]provider.CatalogMatch, error) {
	u := fmt.Sprintf("%s/v2/catalog/search?query=%s", c.baseURL, url.QueryEscape(sku))

	var resp searchResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	matches := make([]provider.CatalogMatch, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.ID == "" {
			return nil, &provider.InvalidResponseError{Reason: "search result missing product id"}
		}
		matches = append(matches, provider.CatalogMatch{
			Provider:          provider.Kixchange,
			ProviderProductID: r.ID,
			StyleCode:         r.StyleID,
			Brand:             r.Brand,
			Model:             r.Title,
			Colorway:          r.Colorway,
			ImageURL:          r.Media.ImageURL,
			RetailPrice:       r.RetailPrice,
		})
	}
	return matches, nil
}

// FetchPrice returns the quote for a single size in the primary currency.
func (c *Client) FetchPrice(ctx context.Context, providerProductID, size string) (*provider.PriceSnapshot, error) {
	snapshots, err := c.fetchMarket(ctx, providerProductID, c.currencies[0])
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

// FetchPrices returns quotes for every size across all configured currencies.
func (c *Client) FetchPrices(ctx context.Context, providerProductID string) ([]provider.PriceSnapshot, error) {
	results := make([][]provider.PriceSnapshot, len(c.currencies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.workers, 1))

	for i, currency := range c.currencies {
		g.Go(func() error {
			snapshots, err := c.fetchMarket(gctx, providerProductID, currency)
			if err != nil {
				return err
			}
			results[i] = snapshots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []provider.PriceSnapshot
	for _, snapshots := range results {
		all = append(all, snapshots...)
	}
	return all, nil
}

func (c *Client) fetchMarket(ctx context.Context, providerProductID, currency string) ([]provider.PriceSnapshot, error) {
	u := fmt.Sprintf("%s/v2/products/%s/market?currency=%s",
		c.baseURL, url.PathEscape(providerProductID), url.QueryEscape(currency))

	var resp marketResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.ProductID != providerProductID {
		return nil, &provider.InvalidResponseError{
			Reason:  "market response for unexpected product",
			Excerpt: resp.ProductID,
		}
	}

	snapshots := make([]provider.PriceSnapshot, 0, len(resp.Variants))
	for _, v := range resp.Variants {
		asOf, err := time.Parse(time.RFC3339, v.UpdatedAt)
		if err != nil {
			return nil, &provider.InvalidResponseError{
				Reason:  "unparseable variant timestamp",
				Excerpt: v.UpdatedAt,
			}
		}
		snapshots = append(snapshots, provider.PriceSnapshot{
			Provider:          provider.Kixchange,
			ProviderProductID: providerProductID,
			Size:              v.Size,
			Currency:          resp.Currency,
			LowestAsk:         v.LowestAsk,
			HighestBid:        v.HighestBid,
			LastSale:          v.LastSale,
			AsOf:              asOf.UTC(),
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
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kixchange request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return provider.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("kixchange: unexpected status %d", resp.StatusCode)
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
