package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type customHTTPError struct{ msg string }

func (e *customHTTPError) Error() string { return e.msg }

func TestHTTPErrorAdapter_StatusCodeFor(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: http.StatusOK},
		{name: "validation", err: ValidationError("invalid input").Build(), expected: http.StatusBadRequest},
		{name: "not found", err: NotFoundError("missing").Build(), expected: http.StatusNotFound},
		{name: "not ready", err: NotReadyError("not ready").Build(), expected: http.StatusPreconditionFailed},
		{name: "process", err: ProcessError("systemctl").Build(), expected: http.StatusBadGateway},
		{name: "filesystem", err: FileSystemError("io").Build(), expected: http.StatusInternalServerError},
		{name: "unclassified", err: &customHTTPError{msg: "unknown error"}, expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adapter.StatusCodeFor(tt.err)
			if got != tt.expected {
				t.Errorf("StatusCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHTTPErrorAdapter_WriteErrorResponse(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.Default())
	err := NotFoundError("backup slot is empty").WithContext("slot", 2).Build()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	adapter.WriteErrorResponse(rec, req, err)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var resp HTTPErrorResponse
	if jerr := json.Unmarshal(rec.Body.Bytes(), &resp); jerr != nil {
		t.Fatalf("decode: %v", jerr)
	}
	if resp.Error != "backup slot is empty" || resp.Code != "not_found" {
		t.Errorf("unexpected payload %+v", resp)
	}
	if resp.Retryable {
		t.Error("expected user-action error to not be flagged retryable")
	}
}
