package restapi

import (
	"encoding/json"
	"net/http"
	"os"

	"transitquery/internal/logging"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Backends int    `json:"backends"`
}

// healthHandler reports ready once at least one backend is loaded and the
// cache directory is reachable.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.Manager == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "manager not initialized",
		})
		return
	}

	backends := len(api.Manager.Backends())
	if backends == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "no networks loaded",
		})
		return
	}

	if api.Cache != nil {
		if _, err := os.Stat(api.Cache.Root()); err != nil {
			logging.LogError(api.Logger, "cache directory unavailable", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{
				Status:   "unavailable",
				Detail:   "cache directory unavailable",
				Backends: backends,
			})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:   "ok",
		Backends: backends,
	})
}
