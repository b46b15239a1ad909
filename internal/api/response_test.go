package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, 201, map[string]string{"hello": "world"}, discardLogger())

	if w.Code != 201 {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteJSON_EncodingFailure(t *testing.T) {
	w := httptest.NewRecorder()

	// Channels are not JSON-encodable; the handler must fall back to a
	// plain 500 without committing headers first.
	WriteJSON(w, 200, make(chan int), discardLogger())

	if w.Code != 500 {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, 429, "rate_limited", "too many requests", discardLogger())

	if w.Code != 429 {
		t.Errorf("status = %d, want 429", w.Code)
	}

	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Error.Code != "rate_limited" {
		t.Errorf("code = %q, want rate_limited", body.Error.Code)
	}
	if body.Error.Message != "too many requests" {
		t.Errorf("message = %q", body.Error.Message)
	}
}
