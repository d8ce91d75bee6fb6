package main

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStoreUnavailable indicates the transcript store root itself is
// unreadable. This is the only fatal load error; individual corrupt
// records are skipped with a warning instead.
var ErrStoreUnavailable = errors.New("transcript store unavailable")

// ErrInvalidQuery indicates a malformed request (bad date filter, negative
// skip, non-positive limit). Rejected before the store is touched.
var ErrInvalidQuery = errors.New("invalid query")

// NotFoundError indicates an identifier resolved to no session. Distinct
// from a search that merely matches nothing.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.Ref)
}

// AmbiguousIdentifierError indicates an identifier prefix matched more than
// one session. Carries the candidates so the caller can self-correct.
type AmbiguousIdentifierError struct {
	Ref        string
	Candidates []string
}

func (e *AmbiguousIdentifierError) Error() string {
	return fmt.Sprintf("%d sessions match %q: %s", len(e.Candidates), e.Ref, strings.Join(e.Candidates, ", "))
}

// OutOfRangeError indicates a chapter, turn, or message number outside the
// valid range for its session. Carries the bound so the caller can retry.
type OutOfRangeError struct {
	What string // "chapter", "turn", or "message"
	N    int
	Max  int
}

func (e *OutOfRangeError) Error() string {
	if e.Max == 0 {
		return fmt.Sprintf("%s %d out of range: session has no %ss", e.What, e.N, e.What)
	}
	return fmt.Sprintf("%s %d out of range [1, %d]", e.What, e.N, e.Max)
}
