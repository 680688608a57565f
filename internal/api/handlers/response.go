package handlers

import (
	"coach-app/internal/logger"
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// respondJSON writes payload as a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("Failed to encode response")
	}
}

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, errMsg, message string) {
	respondJSON(w, status, ErrorResponse{Error: errMsg, Message: message})
}
