package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/live-assist/voice-platform/pkg/logger"
)

// writeJSON writes a JSON response. An encode failure after the header is
// written cannot be reported to the client, so it is only logged.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Global().Warn("failed to encode response body", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
