package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
)

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Report the engine's decode-error counters and queue depth
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	pack.HealthRecord
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.store.getHealth())
}

// handleLatest godoc
//
//	@Summary		Latest telemetry
//	@Description	Return the most recently published telemetry record
//	@Tags			Telemetry
//	@Produce		json
//	@Success		200	{object}	pack.Telemetry
//	@Failure		404	{object}	map[string]string	"no telemetry published yet"
//	@Router			/telemetry [get]
func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	t, ok := s.store.getLatest()
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "no telemetry published yet"})
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// handleHistory godoc
//
//	@Summary		Telemetry history
//	@Description	Return recent telemetry records, oldest first, optionally bounded by ?limit=N
//	@Tags			Telemetry
//	@Produce		json
//	@Param			limit	query	int	false	"maximum records to return"
//	@Success		200	{array}	pack.Telemetry
//	@Router			/telemetry/history [get]
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	respondJSON(w, http.StatusOK, s.store.getHistory(limit))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode JSON response: %v", err)
	}
}
