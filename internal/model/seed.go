package model

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// Seed reference errors.
var (
	// ErrEmptySeed is returned when the seed string is empty after trimming.
	ErrEmptySeed = errors.New("seed cannot be empty")
	// ErrInvalidHandle is returned when the handle contains characters that
	// upstream handles never contain.
	ErrInvalidHandle = errors.New("invalid handle format")
)

// maxHandleLength is the longest handle upstream accepts.
const maxHandleLength = 15

// profileURLPrefixes are stripped from seed input so users can paste links.
var profileURLPrefixes = []string{
	"https://x.com/",
	"https://twitter.com/",
	"https://www.x.com/",
	"https://www.twitter.com/",
	"http://x.com/",
	"http://twitter.com/",
	"x.com/",
	"twitter.com/",
}

// handleFolder case-folds handles. Handles are case-insensitive upstream.
var handleFolder = cases.Fold()

// SeedRef is an immutable reference to a seed account. It is either a
// numeric upstream id, which needs no lookup, or a handle that must be
// resolved before traversal.
type SeedRef struct {
	value string
	isID  bool
}

// NewSeedRef parses user input into a SeedRef.
// Accepted forms: "12345", "@handle", "handle", "https://x.com/handle".
// A leading "id:" forces numeric interpretation.
func NewSeedRef(s string) (SeedRef, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return SeedRef{}, ErrEmptySeed
	}

	if rest, ok := strings.CutPrefix(trimmed, "id:"); ok {
		if !isDigits(rest) {
			return SeedRef{}, ErrInvalidHandle
		}
		return SeedRef{value: rest, isID: true}, nil
	}

	if isDigits(trimmed) {
		return SeedRef{value: trimmed, isID: true}, nil
	}

	handle := NormalizeHandle(trimmed)
	if !isValidHandle(handle) {
		return SeedRef{}, ErrInvalidHandle
	}
	return SeedRef{value: handle}, nil
}

// IsID reports whether the reference is a numeric id.
func (r SeedRef) IsID() bool {
	return r.isID
}

// Value returns the id or the normalized handle.
func (r SeedRef) Value() string {
	return r.value
}

// String returns "@handle" for handles and the bare id otherwise.
func (r SeedRef) String() string {
	if r.isID {
		return r.value
	}
	return "@" + r.value
}

// NormalizeHandle strips profile URL prefixes, a leading "@", any trailing
// path or query, and case-folds the rest.
func NormalizeHandle(s string) string {
	h := strings.TrimSpace(s)
	lower := strings.ToLower(h)
	for _, prefix := range profileURLPrefixes {
		if strings.HasPrefix(lower, prefix) {
			h = h[len(prefix):]
			break
		}
	}
	h = strings.TrimPrefix(h, "@")
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	return handleFolder.String(h)
}

func isValidHandle(h string) bool {
	if h == "" || len(h) > maxHandleLength {
		return false
	}
	for _, c := range h {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
