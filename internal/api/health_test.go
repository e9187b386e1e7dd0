package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler(t)

	recorder := httptest.NewRecorder()
	h.Health(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["status"] != "ok" || payload["storage"] != "ok" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, present := payload["metrics"]; !present {
		t.Fatal("expected metrics snapshot")
	}
}

func TestHealthRejectsNonGet(t *testing.T) {
	h, _, _ := newTestHandler(t)

	recorder := httptest.NewRecorder()
	h.Health(recorder, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
}
