// Package domain holds the core types and sentinel errors of the service.
package domain

import "encoding/json"

// Vector is a fixed-length sequence of float32 components.
// Its length is pinned to the collection dimension at creation time.
type Vector []float32

// Record is one stored entry: external id, vector and an opaque payload.
// The payload is never inspected; it is stored and returned verbatim.
type Record struct {
	ID      uint64          `json:"id"`
	Vector  Vector          `json:"vector"`
	Payload json.RawMessage `json:"payload"`
}
