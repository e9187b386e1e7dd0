package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, http.StatusUnprocessableEntity},
		{KindAuthentication, http.StatusUnauthorized},
		{KindAuthorization, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := New(tc.kind, "boom").Status(); got != tc.status {
			t.Errorf("kind %v: expected status %d, got %d", tc.kind, tc.status, got)
		}
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindInternal, "query failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to survive unwrapping")
	}
	if err.Error() != "query failed: connection reset" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestFrom(t *testing.T) {
	original := NotFound("gone")
	if got := From(fmt.Errorf("outer: %w", original)); got != original {
		t.Fatalf("expected the wrapped application error, got %+v", got)
	}

	plain := errors.New("boom")
	converted := From(plain)
	if converted.Kind != KindInternal || converted.Message != "An error occurred." {
		t.Fatalf("expected internal wrapping, got %+v", converted)
	}
	if !errors.Is(converted, plain) {
		t.Fatal("expected cause to be preserved")
	}

	if From(nil) != nil {
		t.Fatal("expected nil passthrough")
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict("taken"))
	if !IsKind(err, KindConflict) {
		t.Fatal("expected conflict kind through wrapping")
	}
	if IsKind(err, KindNotFound) {
		t.Fatal("unexpected kind match")
	}
	if IsKind(errors.New("plain"), KindInternal) {
		t.Fatal("plain errors carry no kind")
	}
}

func TestValidationCarriesViolations(t *testing.T) {
	err := Validation([]Violation{{Field: "email", Message: "E-Mail is invalid."}})
	if err.Message != "Invalid input." {
		t.Fatalf("unexpected message: %q", err.Message)
	}
	if len(err.Violations) != 1 || err.Violations[0].Field != "email" {
		t.Fatalf("unexpected violations: %+v", err.Violations)
	}
}
