package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an unknown collection.
	ErrNotFound = errors.New("collection not found")
	// ErrAlreadyExists signals a duplicate collection name.
	ErrAlreadyExists = errors.New("collection already exists")
	// ErrDimensionMismatch signals a vector whose length differs from the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrArityMismatch signals an upsert whose ids/vectors/payloads have unequal lengths.
	ErrArityMismatch = errors.New("arity mismatch")
	// ErrCapacityExceeded signals an insertion into a full index.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInvalidConfig signals an unknown distance variant or a non-positive parameter.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrZeroVector signals a zero-magnitude vector under the cosine metric.
	ErrZeroVector = errors.New("zero magnitude vector")
	// ErrNotImplemented signals a feature that is not enabled on this deployment.
	ErrNotImplemented = errors.New("not implemented")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
)

// DimensionMismatchError wraps ErrDimensionMismatch with the expected and actual lengths.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch.Error(), e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(expected, actual int) error {
	return &DimensionMismatchError{Expected: expected, Actual: actual}
}
