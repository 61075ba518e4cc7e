package api

import (
	"encoding/json"
	"net/http"
)

type runRequest struct {
	Type string `json:"type"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun triggers a harvest run. With a type selector (query parameter or
// JSON body) only that report type runs; otherwise every configured type
// runs and the per-type summary is returned. Partial failure is reported
// with a 207.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	reportType := r.URL.Query().Get("type")
	if reportType == "" && r.Body != nil {
		var body runRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			reportType = body.Type
		}
	}

	if reportType != "" {
		result, err := s.harvester.RunOne(r.Context(), reportType)
		if err != nil {
			respondError(w, http.StatusBadRequest, "UNKNOWN_REPORT_TYPE", err.Error())
			return
		}
		if result.Error != "" {
			respondJSON(w, http.StatusInternalServerError, result)
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	summary := s.harvester.RunAll(r.Context())
	status := http.StatusOK
	if summary.Failed > 0 && summary.Succeeded > 0 {
		status = http.StatusMultiStatus
	} else if summary.Failed > 0 {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, summary)
}
