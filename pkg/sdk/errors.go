package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors mapped from API error codes.
// Use errors.Is() to check.
var (
	ErrNotFound          = errors.New("collection not found")
	ErrAlreadyExists     = errors.New("collection already exists")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrArityMismatch     = errors.New("arity mismatch")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrZeroVector        = errors.New("zero magnitude vector")
	ErrNotImplemented    = errors.New("not implemented")
	ErrEmbeddingProvider = errors.New("embedding provider error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
)

var codeSentinels = map[string]error{
	"collection_not_found":      ErrNotFound,
	"collection_already_exists": ErrAlreadyExists,
	"dimension_mismatch":        ErrDimensionMismatch,
	"arity_mismatch":            ErrArityMismatch,
	"capacity_exceeded":         ErrCapacityExceeded,
	"invalid_config":            ErrInvalidConfig,
	"zero_vector":               ErrZeroVector,
	"not_implemented":           ErrNotImplemented,
	"embedding_provider_error":  ErrEmbeddingProvider,
}

// APIError carries the HTTP status and server error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("annex: %s (code=%s, status=%d)", e.Message, e.Code, e.StatusCode)
}

// Unwrap maps the server error code to a sentinel error.
func (e *APIError) Unwrap() error {
	if s, ok := codeSentinels[e.Code]; ok {
		return s
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		apiErr.Message = resp.Status
		return apiErr
	}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil || payload.Message == "" {
		apiErr.Message = resp.Status
		return apiErr
	}

	apiErr.Code = payload.Code
	apiErr.Message = payload.Message
	return apiErr
}
