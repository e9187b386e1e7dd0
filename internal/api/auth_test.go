package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		token  string
	}{
		{name: "bearer", header: "Bearer abc.def.ghi", token: "abc.def.ghi"},
		{name: "case insensitive scheme", header: "bearer abc", token: "abc"},
		{name: "missing header", header: "", token: ""},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", token: ""},
		{name: "bare token", header: "abc.def.ghi", token: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if got := ExtractToken(req); got != tc.token {
				t.Fatalf("expected %q, got %q", tc.token, got)
			}
		})
	}
}

func TestAuthenticateRequest(t *testing.T) {
	h, store, _ := newTestHandler(t)
	user := registerUser(t, store, "max@test.com")

	token, err := h.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/operations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resolved, ok := h.AuthenticateRequest(req)
	if !ok {
		t.Fatal("expected authentication to succeed")
	}
	if resolved.ID != user.ID {
		t.Fatalf("expected user %q, got %q", user.ID, resolved.ID)
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/operations", nil)
	bad.Header.Set("Authorization", "Bearer garbage")
	if _, ok := h.AuthenticateRequest(bad); ok {
		t.Fatal("expected garbage token to fail")
	}

	none := httptest.NewRequest(http.MethodPost, "/api/operations", nil)
	if _, ok := h.AuthenticateRequest(none); ok {
		t.Fatal("expected missing token to fail")
	}
}

func TestAuthenticateRequestRejectsDeletedUser(t *testing.T) {
	h, store, _ := newTestHandler(t)
	user := registerUser(t, store, "max@test.com")
	token, err := h.Tokens.Issue("ghost-user", user.Email)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/operations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if _, ok := h.AuthenticateRequest(req); ok {
		t.Fatal("token for an unknown subject must not authenticate")
	}
}
