package domain

import (
	"fmt"
	"regexp"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Distance names a supported distance metric variant.
type Distance string

const (
	// DistanceL2 is the squared Euclidean distance (not square-rooted).
	DistanceL2 Distance = "l2"
	// DistanceCosine is 1 - cos(a, b).
	DistanceCosine Distance = "cosine"
)

// IsValid checks whether the distance variant is supported.
func (d Distance) IsValid() bool {
	return d == DistanceL2 || d == DistanceCosine
}

// CollectionConfig is the immutable per-collection index configuration.
type CollectionConfig struct {
	Distance Distance `json:"distance"`
	// MaxNeighbors bounds the per-layer neighbor list of every graph node
	// (doubled at layer 0).
	MaxNeighbors int `json:"max_neighbors_per_node"`
	// SearchBreadth is the query-time beam width (ef). Clamped up to top_k
	// per search.
	SearchBreadth int `json:"search_breadth"`
	// MaxElements is the hard node capacity of the graph.
	MaxElements int `json:"max_elements"`
}

// ValidateName checks a collection name: ^[a-zA-Z0-9_-]+$, 1-64 chars.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if len(name) > 64 {
		return fmt.Errorf("%w: collection name too long (max 64)", ErrInvalidConfig)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: collection name must be alphanumeric with underscores and hyphens", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the collection config and dimension for correctness.
func (c CollectionConfig) Validate(dim int) error {
	if !c.Distance.IsValid() {
		return fmt.Errorf("%w: unknown distance %q", ErrInvalidConfig, c.Distance)
	}
	if c.MaxNeighbors <= 0 {
		return fmt.Errorf("%w: max_neighbors_per_node must be positive, got %d", ErrInvalidConfig, c.MaxNeighbors)
	}
	if c.SearchBreadth <= 0 {
		return fmt.Errorf("%w: search_breadth must be positive, got %d", ErrInvalidConfig, c.SearchBreadth)
	}
	if c.MaxElements <= 0 {
		return fmt.Errorf("%w: max_elements must be positive, got %d", ErrInvalidConfig, c.MaxElements)
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dim must be positive, got %d", ErrInvalidConfig, dim)
	}
	return nil
}

// SearchResult is one search hit: external id and distance to the query.
type SearchResult struct {
	ID       uint64
	Distance float32
}
