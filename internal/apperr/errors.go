package apperr

import "errors"

var (
	// ErrUnreachable marks a remote store or identity provider that could not
	// be contacted at all, as opposed to one that answered with a failure.
	// Callers surface it as an offline notice instead of a generic error.
	ErrUnreachable = errors.New("backend unreachable")

	ErrNotFound = errors.New("not found")
)
