package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buffer})

	logger.Info("hidden")
	logger.Warn("visible")

	output := buffer.String()
	if strings.Contains(output, "hidden") {
		t.Fatal("info record should be filtered at warn level")
	}
	if !strings.Contains(output, "visible") {
		t.Fatal("warn record should be emitted")
	}
}

func TestNewTextFormat(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(Config{Writer: &buffer, Format: "text"})
	logger.Info("hello")
	if strings.HasPrefix(strings.TrimSpace(buffer.String()), "{") {
		t.Fatal("expected text output, got JSON")
	}
}

func TestWithContextAnnotatesRequestID(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(Config{Writer: &buffer})

	ctx := ContextWithRequestID(context.Background(), "req-42")
	WithContext(ctx, logger).Info("tagged")

	var record map[string]interface{}
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["request_id"] != "req-42" {
		t.Fatalf("expected request_id attribute, got %v", record)
	}
}

func TestContextLoggerRoundTrip(t *testing.T) {
	logger := New(Config{})
	ctx := ContextWithLogger(context.Background(), logger)
	if LoggerFromContext(ctx) != logger {
		t.Fatal("expected stored logger back")
	}
	if LoggerFromContext(context.Background()) != nil {
		t.Fatal("expected nil without a stored logger")
	}
}

func TestRequestLoggerRecordsCompletion(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(Config{Writer: &buffer})

	handler := RequestLogger(RequestLoggerConfig{Logger: logger})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]interface{}
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["path"] != "/healthz" {
		t.Fatalf("expected path attribute, got %v", record)
	}
	if record["status"] != float64(http.StatusTeapot) {
		t.Fatalf("expected captured status, got %v", record["status"])
	}
}
