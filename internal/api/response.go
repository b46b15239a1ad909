package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// ErrorBody is the inner payload of an error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
// Uses buffer-first strategy so headers are only sent after successful
// encoding, which allows returning a proper 500 if encoding fails.
func WriteJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}}, logger)
}
