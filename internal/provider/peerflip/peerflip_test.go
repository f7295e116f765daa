package peerflip

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grailtrack/market-sync/internal/provider"
)

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		sku := r.URL.Query().Get("sku")
		if sku == "" {
			t.Error("expected sku query parameter")
		}
		_, _ = w.Write([]byte(`{"products": [
			{"slug": "air-jordan-1-lucky-green", "sku": "DZ5485-612", "brand": "Jordan",
			 "name": "Air Jordan 1 Retro High OG", "colorway": "Lucky Green",
			 "image": "https://cdn.peerflip.market/aj1.jpg", "retail": 180}
		]}`))
	})

	mux.HandleFunc("/api/products/air-jordan-1-lucky-green/offers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"slug": "air-jordan-1-lucky-green",
			"currency": "USD",
			"offers": [
				{"size": "10", "price": 235, "soldLast": 228, "updatedAt": "2026-03-01T12:00:00Z"},
				{"size": "11", "price": 228, "consignment": true, "updatedAt": "2026-03-01T12:00:00Z"}
			]
		}`))
	})

	mux.HandleFunc("/api/products/no-currency/offers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"slug": "no-currency", "offers": []}`))
	})

	mux.HandleFunc("/api/products/gone/offers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(mux)
	c := New(WithClient(ts.Client()), WithBaseURL(ts.URL))
	return ts, c
}

func TestSearch(t *testing.T) {
	ts, c := newTestServer(t)
	defer ts.Close()

	matches, err := c.Search(context.Background(), "DZ5485-612")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].ProviderProductID != "air-jordan-1-lucky-green" {
		t.Errorf("expected slug as product id, got %s", matches[0].ProviderProductID)
	}
	if matches[0].StyleCode != "DZ5485-612" {
		t.Errorf("expected style code, got %s", matches[0].StyleCode)
	}
}

func TestFetchPrices(t *testing.T) {
	ts, c := newTestServer(t)
	defer ts.Close()

	snapshots, err := c.FetchPrices(context.Background(), "air-jordan-1-lucky-green")
	if err != nil {
		t.Fatalf("fetch prices: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}

	first := snapshots[0]
	if first.LowestAsk == nil || *first.LowestAsk != 235 {
		t.Errorf("expected listing price mapped to ask, got %v", first.LowestAsk)
	}
	if first.LastSale == nil || *first.LastSale != 228 {
		t.Errorf("expected soldLast mapped to last sale, got %v", first.LastSale)
	}
	// Peerflip has no bid side.
	if first.HighestBid != nil {
		t.Errorf("expected nil bid, got %v", first.HighestBid)
	}
	if first.Meta != "" {
		t.Errorf("expected no meta on regular listing, got %q", first.Meta)
	}

	second := snapshots[1]
	if second.Meta != MetaConsignment {
		t.Errorf("expected consignment meta, got %q", second.Meta)
	}
}

func TestFetchPrice_SingleSize(t *testing.T) {
	ts, c := newTestServer(t)
	defer ts.Close()

	snap, err := c.FetchPrice(context.Background(), "air-jordan-1-lucky-green", "11")
	if err != nil {
		t.Fatalf("fetch price: %v", err)
	}
	if snap.Size != "11" {
		t.Errorf("expected size 11, got %s", snap.Size)
	}

	_, err = c.FetchPrice(context.Background(), "air-jordan-1-lucky-green", "7")
	if !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown size, got %v", err)
	}
}

func TestFetchPrices_MissingCurrency(t *testing.T) {
	ts, c := newTestServer(t)
	defer ts.Close()

	_, err := c.FetchPrices(context.Background(), "no-currency")
	if !provider.IsInvalid(err) {
		t.Errorf("expected invalid response for missing currency, got %v", err)
	}
}

func TestFetchPrices_NotFound(t *testing.T) {
	ts, c := newTestServer(t)
	defer ts.Close()

	_, err := c.FetchPrices(context.Background(), "gone")
	if !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchPrices_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer ts.Close()

	c := New(WithClient(ts.Client()), WithBaseURL(ts.URL))

	_, err := c.FetchPrices(context.Background(), "whatever")
	if !provider.IsInvalid(err) {
		t.Fatalf("expected invalid response error, got %v", err)
	}

	var ie *provider.InvalidResponseError
	if !errors.As(err, &ie) {
		t.Fatal("expected InvalidResponseError")
	}
	if ie.Excerpt != "not json at all" {
		t.Errorf("expected payload excerpt, got %q", ie.Excerpt)
	}
}

func TestProvider(t *testing.T) {
	c := New()
	if c.Provider() != provider.Peerflip {
		t.Errorf("expected peerflip, got %s", c.Provider())
	}
}
