// Package store holds the in-memory collection state: one proximity graph
// index plus the record store per collection, and the registry mapping
// collection names to collections.
//
// Lock discipline: the registry guards its name map with its own RWMutex,
// used only for structural changes (create, delete, list, lookup). Every
// collection carries a separate RWMutex: Search takes the read lock so
// queries on one collection run in parallel, Upsert takes the write lock.
// A slow insertion into one collection never blocks queries on another.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kailas-cloud/annex/internal/distance"
	"github.com/kailas-cloud/annex/internal/domain"
	"github.com/kailas-cloud/annex/internal/index/hnsw"
)

// Collection pairs one immutable config with one graph index, the record
// store and the internal/external id mapping.
type Collection struct {
	mu   sync.RWMutex
	name string
	dim  int
	cfg  domain.CollectionConfig

	index   *hnsw.Index
	records map[uint64]domain.Record

	// The graph needs dense small integers, so graph node ids are internal.
	// internalToExt is indexed by internal id; extToInternal is the reverse
	// lookup used by upsert-replace.
	internalToExt []uint64
	extToInternal map[uint64]uint32
}

func newCollection(name string, cfg domain.CollectionConfig, dim, efConstruction int, seed *int64) (*Collection, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}
	if err := cfg.Validate(dim); err != nil {
		return nil, err
	}

	metric := distance.MetricL2
	if cfg.Distance == domain.DistanceCosine {
		metric = distance.MetricCosine
	}

	idx, err := hnsw.New(hnsw.Options{
		Dimension:      dim,
		M:              cfg.MaxNeighbors,
		EFConstruction: efConstruction,
		MaxElements:    cfg.MaxElements,
		Metric:         metric,
		RandomSeed:     seed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	return &Collection{
		name:          name,
		dim:           dim,
		cfg:           cfg,
		index:         idx,
		records:       make(map[uint64]domain.Record),
		internalToExt: make([]uint64, 0, cfg.MaxElements),
		extToInternal: make(map[uint64]uint32),
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Dim returns the fixed vector length.
func (c *Collection) Dim() int { return c.dim }

// Config returns the immutable collection config.
func (c *Collection) Config() domain.CollectionConfig { return c.cfg }

// Count returns the number of stored records.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Upsert validates and applies a batch of records. The whole batch is
// validated (arity, dimensions, zero vectors, capacity) before any mutation;
// a failed upsert leaves the collection untouched. Re-upserting an existing
// external id replaces it: the old graph node is tombstoned, the vector is
// reinserted and the stored record overwritten.
func (c *Collection) Upsert(ids []uint64, vectors []domain.Vector, payloads []json.RawMessage) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("%w: ids=%d vectors=%d payloads=%d",
			domain.ErrArityMismatch, len(ids), len(vectors), len(payloads))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, v := range vectors {
		if len(v) != c.dim {
			return fmt.Errorf("record %d: %w", i, domain.NewDimensionMismatch(c.dim, len(v)))
		}
		if c.cfg.Distance == domain.DistanceCosine && isZero(v) {
			return fmt.Errorf("record %d: %w", i, domain.ErrZeroVector)
		}
	}

	// Every insertion consumes a node slot, replaced versions included;
	// tombstoned slots are not reclaimed.
	if c.index.Stats().Nodes+len(ids) > c.cfg.MaxElements {
		return fmt.Errorf("%w: %d nodes used of %d, batch needs %d more",
			domain.ErrCapacityExceeded, c.index.Stats().Nodes, c.cfg.MaxElements, len(ids))
	}

	for i, id := range ids {
		if old, ok := c.extToInternal[id]; ok {
			c.index.Delete(old)
		}

		internal, err := c.index.Insert(vectors[i])
		if err != nil {
			return translateIndexError(err)
		}

		c.internalToExt = append(c.internalToExt, id)
		c.extToInternal[id] = internal
		c.records[id] = domain.Record{
			ID:      id,
			Vector:  slices.Clone(vectors[i]),
			Payload: payloads[i],
		}
	}
	return nil
}

// Search returns up to topK nearest records, sorted ascending by distance.
// ef overrides the collection's search breadth when positive; it is always
// clamped up to topK by the index.
func (c *Collection) Search(query domain.Vector, topK, ef int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidConfig, topK)
	}
	if len(query) != c.dim {
		return nil, domain.NewDimensionMismatch(c.dim, len(query))
	}
	if ef <= 0 {
		ef = c.cfg.SearchBreadth
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	hits, err := c.index.Search(query, topK, ef)
	if err != nil {
		return nil, translateIndexError(err)
	}

	out := make([]domain.SearchResult, len(hits))
	for i, hit := range hits {
		out[i] = domain.SearchResult{
			ID:       c.internalToExt[hit.ID],
			Distance: hit.Distance,
		}
	}
	return out, nil
}

// Record returns the stored record for an external id.
func (c *Collection) Record(id uint64) (domain.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return rec, ok
}

func isZero(v domain.Vector) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func translateIndexError(err error) error {
	var dm *hnsw.DimensionMismatchError
	switch {
	case errors.As(err, &dm):
		return domain.NewDimensionMismatch(dm.Expected, dm.Actual)
	case errors.Is(err, hnsw.ErrCapacityExceeded):
		return fmt.Errorf("%w: %w", domain.ErrCapacityExceeded, err)
	case errors.Is(err, hnsw.ErrZeroVector):
		return fmt.Errorf("%w: %w", domain.ErrZeroVector, err)
	case errors.Is(err, hnsw.ErrInvalidK):
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	default:
		return err
	}
}
