// Package validate holds the field-level checks shared by user and post
// mutations. Checks accumulate violations so callers always report the full
// list, never just the first failure.
package validate

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"inkwell/internal/apperr"
)

const (
	// MinTextLength is the uniform floor applied to every free-text field.
	MinTextLength = 6

	maxNameLength    = 190
	maxTitleLength   = 190
	maxStatusLength  = 280
	maxContentLength = 50000
)

// Violations accumulates field failures across a request.
type Violations struct {
	list []apperr.Violation
}

// Add records a failed check.
func (v *Violations) Add(field, message string) {
	v.list = append(v.list, apperr.Violation{Field: field, Message: message})
}

// Err returns a validation error carrying every recorded violation, or nil
// when all checks passed.
func (v *Violations) Err() error {
	if len(v.list) == 0 {
		return nil
	}
	return apperr.Validation(v.list)
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeText applies Unicode NFC so length checks and stored values do not
// depend on the client's composition form.
func NormalizeText(text string) string {
	return norm.NFC.String(text)
}

// Email records a violation unless the address satisfies a pragmatic grammar:
// parseable as a bare address with a dot somewhere in the domain.
func (v *Violations) Email(field, email string) {
	email = NormalizeEmail(email)
	if email == "" {
		v.Add(field, "E-Mail is required.")
		return
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		v.Add(field, "E-Mail is invalid.")
		return
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || !strings.Contains(email[at+1:], ".") {
		v.Add(field, "E-Mail is invalid.")
	}
}

// Text records a violation unless the value is non-empty, at least
// MinTextLength runes, and no longer than max runes. A max of zero skips the
// upper bound.
func (v *Violations) Text(field, value string, max int) {
	value = NormalizeText(value)
	length := utf8.RuneCountInString(strings.TrimSpace(value))
	if length == 0 {
		v.Add(field, field+" is required.")
		return
	}
	if length < MinTextLength {
		v.Add(field, field+" is too short.")
		return
	}
	if max > 0 && utf8.RuneCountInString(value) > max {
		v.Add(field, field+" is too long.")
	}
}

// Password applies the shared text floor without an upper bound. Passwords
// are checked pre-normalization apart from NFC so a trailing space remains
// significant.
func (v *Violations) Password(field, password string) {
	password = NormalizeText(password)
	length := utf8.RuneCountInString(password)
	if length == 0 {
		v.Add(field, "Password is required.")
		return
	}
	if length < MinTextLength {
		v.Add(field, "Password is too short.")
	}
}

// Name checks a display name.
func (v *Violations) Name(field, name string) {
	v.Text(field, name, maxNameLength)
}

// Title checks a post title.
func (v *Violations) Title(field, title string) {
	v.Text(field, title, maxTitleLength)
}

// Content checks a post body.
func (v *Violations) Content(field, content string) {
	v.Text(field, content, maxContentLength)
}

// Status checks a status line.
func (v *Violations) Status(field, status string) {
	v.Text(field, status, maxStatusLength)
}
