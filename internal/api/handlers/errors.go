package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// WriteError writes a JSON error response of the form {"error": message}.
// message is shown to end users as-is, so it must not carry internal detail.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, map[string]string{"error": message})
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("[API] failed to encode JSON response",
			"status", statusCode,
			"error", err,
		)
	}
}
