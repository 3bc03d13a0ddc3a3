// Package vector implements upsert and search over a collection, including
// server-side embedding of text records when an embedder is configured.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/annex/internal/domain"
	logpkg "github.com/kailas-cloud/annex/internal/logger"
	"github.com/kailas-cloud/annex/internal/metrics"
	"github.com/kailas-cloud/annex/internal/store"
)

// Embedder turns texts into vectors via an external provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Service handles vector upsert and search.
type Service struct {
	registry *store.Registry
	embedder Embedder // nil when embedding is not configured
}

// New creates a vector service.
func New(registry *store.Registry, embedder Embedder) *Service {
	return &Service{registry: registry, embedder: embedder}
}

// Upsert applies a batch of records to a collection and returns the number
// applied. The batch is all-or-nothing.
func (s *Service) Upsert(ctx context.Context, name string, ids []uint64, vectors []domain.Vector, payloads []json.RawMessage) (int, error) {
	col, err := s.registry.Get(name)
	if err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}

	if err := col.Upsert(ids, vectors, payloads); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}

	metrics.UpsertRecordsTotal.WithLabelValues(name).Add(float64(len(ids)))
	logpkg.FromContext(ctx).Debug("upsert applied",
		zap.String("collection", name),
		zap.Int("records", len(ids)),
	)
	return len(ids), nil
}

// Search returns up to topK nearest records. ef overrides the collection's
// search breadth when positive.
func (s *Service) Search(ctx context.Context, name string, query domain.Vector, topK, ef int) ([]domain.SearchResult, error) {
	col, err := s.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	start := time.Now()
	results, err := col.Search(query, topK, ef)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	metrics.SearchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	logpkg.FromContext(ctx).Debug("search completed",
		zap.String("collection", name),
		zap.Int("top_k", topK),
		zap.Int("hits", len(results)),
	)
	return results, nil
}

// UpsertText embeds texts through the configured provider and upserts the
// resulting vectors. Fails with ErrNotImplemented when no embedder is
// configured.
func (s *Service) UpsertText(ctx context.Context, name string, ids []uint64, texts []string, payloads []json.RawMessage) (int, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("upsert text: %w: no embedding provider configured", domain.ErrNotImplemented)
	}
	if len(ids) != len(texts) || len(ids) != len(payloads) {
		return 0, fmt.Errorf("upsert text: %w: ids=%d texts=%d payloads=%d",
			domain.ErrArityMismatch, len(ids), len(texts), len(payloads))
	}

	embedded, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("upsert text: %w: %w", domain.ErrEmbeddingProvider, err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("ok").Inc()

	vectors := make([]domain.Vector, len(embedded))
	for i, v := range embedded {
		vectors[i] = v
	}
	return s.Upsert(ctx, name, ids, vectors, payloads)
}
