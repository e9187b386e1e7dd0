package api

import (
	"context"
	"net/http"
	"time"

	"inkwell/internal/observability/metrics"
)

type healthResponse struct {
	Status  string           `json:"status"`
	Storage string           `json:"storage"`
	Metrics metrics.Snapshot `json:"metrics"`
}

// Health reports process liveness, storage reachability, and the request
// counters.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeFailureMessage(w, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}

	response := healthResponse{Status: "ok", Storage: "ok", Metrics: h.Metrics.Snapshot()}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.Warn("storage ping failed", "error", err)
		response.Status = "degraded"
		response.Storage = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}
