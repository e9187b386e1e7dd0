package validate

import (
	"errors"
	"strings"
	"testing"

	"inkwell/internal/apperr"
)

func violationsOf(t *testing.T, err error) []apperr.Violation {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %v", appErr.Kind)
	}
	return appErr.Violations
}

func TestEmail(t *testing.T) {
	cases := []struct {
		name    string
		email   string
		message string
	}{
		{name: "valid", email: "max@test.com"},
		{name: "valid mixed case", email: "Max@Test.COM"},
		{name: "empty", email: "", message: "E-Mail is required."},
		{name: "missing at", email: "maxtest.com", message: "E-Mail is invalid."},
		{name: "missing domain dot", email: "max@localhost", message: "E-Mail is invalid."},
		{name: "display name form", email: "Max <max@test.com>", message: "E-Mail is invalid."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v Violations
			v.Email("email", tc.email)
			err := v.Err()
			if tc.message == "" {
				if err != nil {
					t.Fatalf("expected %q to pass, got %v", tc.email, err)
				}
				return
			}
			violations := violationsOf(t, err)
			if len(violations) != 1 || violations[0].Message != tc.message {
				t.Fatalf("expected %q, got %+v", tc.message, violations)
			}
		})
	}
}

func TestTextFloorCountsRunes(t *testing.T) {
	var v Violations
	// Five runes even though the UTF-8 encoding is longer than six bytes.
	v.Text("title", "héllo", 0)
	violations := violationsOf(t, v.Err())
	if len(violations) != 1 || violations[0].Message != "title is too short." {
		t.Fatalf("expected rune-counted floor, got %+v", violations)
	}

	v = Violations{}
	v.Text("title", "héllo!", 0)
	if err := v.Err(); err != nil {
		t.Fatalf("expected six runes to pass, got %v", err)
	}
}

func TestTextUpperBound(t *testing.T) {
	var v Violations
	v.Title("title", strings.Repeat("a", 191))
	violations := violationsOf(t, v.Err())
	if len(violations) != 1 || violations[0].Message != "title is too long." {
		t.Fatalf("expected length cap, got %+v", violations)
	}
}

func TestPasswordFloor(t *testing.T) {
	var v Violations
	v.Password("password", "12345")
	violations := violationsOf(t, v.Err())
	if len(violations) != 1 || violations[0].Message != "Password is too short." {
		t.Fatalf("expected floor violation, got %+v", violations)
	}

	v = Violations{}
	v.Password("password", "123456")
	if err := v.Err(); err != nil {
		t.Fatalf("expected six characters to pass, got %v", err)
	}
}

func TestViolationsAccumulate(t *testing.T) {
	var v Violations
	v.Email("email", "bad")
	v.Name("name", "ab")
	v.Password("password", "")
	violations := violationsOf(t, v.Err())
	if len(violations) != 3 {
		t.Fatalf("expected all failures reported, got %+v", violations)
	}
}

func TestNormalizeTextAppliesNFC(t *testing.T) {
	// "e" followed by combining acute composes to a single rune.
	decomposed := "café"
	composed := NormalizeText(decomposed)
	if composed != "café" {
		t.Fatalf("expected composed form, got %q", composed)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Max@Test.COM "); got != "max@test.com" {
		t.Fatalf("expected lowercased trimmed address, got %q", got)
	}
}
