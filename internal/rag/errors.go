package rag

import (
	"errors"
	"fmt"
)

// Error kinds shared by every pipeline component. Wrap them with
// fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrConfiguration marks bad parameters or missing settings. Fatal, never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection marks transient network or service unavailability. Callers
	// may retry with backoff; components never retry internally.
	ErrConnection = errors.New("connection error")

	// ErrEmbeddingProvider marks a failed embedding provider call.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrCompletionProvider marks a failed completion provider call.
	ErrCompletionProvider = errors.New("completion provider error")

	// ErrCollectionNotFound marks a search or upsert against a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrNoDataAvailable marks a query with no collections to draw from.
	ErrNoDataAvailable = errors.New("no data available")

	// ErrDimensionMismatch marks a vector or collection whose dimensionality
	// (or metric) disagrees with an existing collection.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrConfiguration)

	// ErrInvalidPayload marks a record rejected at the store boundary.
	ErrInvalidPayload = fmt.Errorf("%w: invalid payload", ErrConfiguration)
)

// UpsertError reports a failed upsert batch together with how many records
// the store confirmed before the failure.
type UpsertError struct {
	// Collection is the target collection name.
	Collection string
	// Attempted is the number of records in the batch.
	Attempted int
	// Stored is the number of records confirmed written. Zero when the store
	// cannot report partial success.
	Stored int
	// Err is the underlying cause.
	Err error
}

// NotStored returns the number of records that were not written.
func (e *UpsertError) NotStored() int {
	return e.Attempted - e.Stored
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert into %q failed: %d of %d records not stored: %v",
		e.Collection, e.NotStored(), e.Attempted, e.Err)
}

func (e *UpsertError) Unwrap() error {
	return e.Err
}

// Kind returns a short stable name for the first error kind err wraps, or
// "internal" when it wraps none. Used for metrics labels and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNoDataAvailable):
		return "no_data"
	case errors.Is(err, ErrCollectionNotFound):
		return "collection_not_found"
	case errors.Is(err, ErrEmbeddingProvider):
		return "embedding_provider"
	case errors.Is(err, ErrCompletionProvider):
		return "completion_provider"
	case errors.Is(err, ErrConnection):
		return "connection"
	default:
		return "internal"
	}
}
