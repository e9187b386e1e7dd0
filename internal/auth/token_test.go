package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewTokenManager("   "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestIssueAndVerify(t *testing.T) {
	manager, err := NewTokenManager("test-secret")
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}

	token, err := manager.Issue("user-1", "max@test.com")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "max@test.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	current := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager, err := NewTokenManager("test-secret",
		WithTokenTTL(time.Hour),
		WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}

	token, err := manager.Issue("user-1", "max@test.com")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := manager.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer, err := NewTokenManager("secret-a")
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}
	verifier, err := NewTokenManager("secret-b")
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}

	token, err := issuer.Issue("user-1", "max@test.com")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	manager, err := NewTokenManager("test-secret")
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := manager.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}
