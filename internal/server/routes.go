package server

import (
	"net/http"

	"github.com/grailtrack/market-sync/internal/bulksync"
	"github.com/grailtrack/market-sync/internal/inventory"
	"github.com/grailtrack/market-sync/internal/mapping"
	"github.com/grailtrack/market-sync/internal/market"
	"github.com/grailtrack/market-sync/internal/provider"
	"github.com/grailtrack/market-sync/internal/syncjob"
)

// Deps bundles the services the HTTP surface fronts.
type Deps struct {
	Market       *market.Service
	Jobs         *syncjob.Service
	Items        *inventory.Service
	Mappings     *mapping.Tracker
	Orchestrator *bulksync.Orchestrator
	Providers    []provider.Provider
}

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(deps Deps) http.Handler {
	return newMux(deps)
}

func newMux(deps Deps) http.Handler {
	h := &handler{deps: deps}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/v1/providers", h.listProviders)

	mux.HandleFunc("GET /api/v1/products/{key}/market", h.getMarket)
	mux.HandleFunc("GET /api/v1/products/{key}/history", h.getHistory)

	mux.HandleFunc("GET /api/v1/items", h.listItems)
	mux.HandleFunc("POST /api/v1/items", h.createItem)
	mux.HandleFunc("GET /api/v1/items/{id}/mappings", h.getItemMappings)

	mux.HandleFunc("POST /api/v1/sync/jobs", h.enqueueJob)
	mux.HandleFunc("POST /api/v1/sync/jobs/retry", h.retryJobs)
	mux.HandleFunc("GET /api/v1/sync/jobs", h.listJobs)
	mux.HandleFunc("GET /api/v1/sync/jobs/{id}", h.getJob)

	mux.HandleFunc("POST /api/v1/sync/bulk", h.runBulkSync)
	mux.HandleFunc("GET /api/v1/sync/bulk", h.bulkSyncStatus)
	mux.HandleFunc("DELETE /api/v1/sync/bulk", h.cancelBulkSync)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
