package store

import "errors"

var (
	// ErrNotFound names the not-found case. Point reads do not return it:
	// PointSuper reports a missing row or column as ok=false with a nil
	// error, since that is expected control flow for cold starts.
	ErrNotFound = errors.New("store: not found")

	// ErrRetryExhausted is returned when a batch write fails: after its
	// bounded retry budget on a retryable connection error, or at once on
	// any other error.
	ErrRetryExhausted = errors.New("store: retry budget exhausted")

	// ErrSchemaDrift is returned by EnsureSchema when an existing column
	// family's layout does not match what this adapter expects.
	ErrSchemaDrift = errors.New("store: schema drift")
)
