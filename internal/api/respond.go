package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/portal"
)

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

// respondError maps the engine's error taxonomy onto HTTP statuses:
// NotFound 404, Validation 400, Upstream 502, Persistence and anything
// unclassified 500.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case portal.IsNotFound(err):
		status = http.StatusNotFound
	case portal.IsValidation(err):
		status = http.StatusBadRequest
	case portal.IsUpstream(err):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		zap.L().Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
