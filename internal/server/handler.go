package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grailtrack/market-sync/internal/apperror"
	"github.com/grailtrack/market-sync/internal/bulksync"
	"github.com/grailtrack/market-sync/internal/inventory"
	"github.com/grailtrack/market-sync/internal/market"
	"github.com/grailtrack/market-sync/internal/provider"
	"github.com/grailtrack/market-sync/internal/syncjob"
)

const dateFormat = "2006-01-02"

type handler struct {
	deps Deps
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Providers)
}

type marketRow struct {
	market.Row
	Best *market.BestPrice `json:"best,omitempty"`
}

func (h *handler) getMarket(w http.ResponseWriter, r *http.Request) {
	req := market.UnifiedRequest{
		ProductKey:  strings.ToUpper(r.PathValue("key")),
		Region:      strings.ToUpper(r.URL.Query().Get("region")),
		Consignment: r.URL.Query().Get("consignment") == "true",
	}

	rows, err := h.deps.Market.UnifiedMarketData(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]marketRow, len(rows))
	for i, row := range rows {
		out[i] = marketRow{Row: row}
		if best, ok := h.deps.Market.Best(row); ok {
			out[i].Best = best
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	req := market.HistoryRequest{
		Provider:   provider.Provider(r.URL.Query().Get("provider")),
		ProductKey: strings.ToUpper(r.PathValue("key")),
		Size:       r.URL.Query().Get("size"),
	}

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(dateFormat, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
		req.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(dateFormat, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
		req.To = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		req.Limit = n
	}

	observations, err := h.deps.Market.History(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, observations)
}

func (h *handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Items.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req inventory.CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.deps.Items.AddItem(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handler) getItemMappings(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	links, err := h.deps.Mappings.ListByItem(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *handler) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req syncjob.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Manual enqueues through the API default to user priority.
	if req.Priority == 0 {
		req.Priority = syncjob.PriorityManual
	}

	j, err := h.deps.Jobs.Enqueue(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	if j == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already scheduled"})
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *handler) retryJobs(w http.ResponseWriter, r *http.Request) {
	var req syncjob.RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.deps.Jobs.RetryFailed(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"retried": n})
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	req := syncjob.ListJobsRequest{
		Provider:   provider.Provider(r.URL.Query().Get("provider")),
		ProductKey: strings.ToUpper(r.URL.Query().Get("productKey")),
		Status:     syncjob.Status(r.URL.Query().Get("status")),
	}

	jobs, err := h.deps.Jobs.List(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	j, err := h.deps.Jobs.Get(r.Context(), syncjob.GetJobRequest{ID: id})
	if err != nil {
		respondError(w, err)
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type bulkSyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*bulksync.Summary
}

// runBulkSync executes the sweep inside the request. The sweep is O(items x
// delay); callers must size their client timeout accordingly or run with a
// narrow mode.
func (h *handler) runBulkSync(w http.ResponseWriter, r *http.Request) {
	var req bulksync.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := h.deps.Orchestrator.Run(r.Context(), req, nil)
	if err != nil && summary == nil {
		respondError(w, err)
		return
	}

	resp := bulkSyncResponse{
		Success: err == nil && summary.Failed == 0,
		Summary: summary,
	}
	switch {
	case err != nil:
		resp.Message = "sweep interrupted: " + err.Error()
	case summary.Failed > 0:
		resp.Message = "sweep finished with errors"
	default:
		resp.Message = "sweep finished"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) bulkSyncStatus(w http.ResponseWriter, r *http.Request) {
	running, progress, lastRun := h.deps.Orchestrator.Tracker().Status()
	if running {
		writeJSON(w, http.StatusOK, map[string]any{
			"running":  true,
			"progress": progress,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running": false,
		"lastRun": lastRun,
	})
}

// cancelBulkSync is a documented no-op: the sweep runs inside the triggering
// request and owns no out-of-process component to cancel. Dropping the POST
// connection cancels its context instead.
func (h *handler) cancelBulkSync(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "nothing to cancel; sweeps run within the triggering request",
	})
}

func respondError(w http.ResponseWriter, err error) {
	var ae *apperror.AppError
	if errors.As(err, &ae) {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
