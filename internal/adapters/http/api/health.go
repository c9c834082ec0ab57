package api

import (
	"net/http"
)

// HealthHandler handles health check requests.
type HealthHandler struct{}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

type healthResponse struct {
	OK bool `json:"ok"`
}

// HandleHealth handles GET /health requests. The answer is fixed: the route
// is only registered once the model has loaded.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind("api.health", ErrMethodNotAllowed))
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{OK: true})
}
