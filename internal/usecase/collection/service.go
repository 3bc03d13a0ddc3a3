// Package collection implements collection lifecycle operations over the
// registry.
package collection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/annex/internal/domain"
	logpkg "github.com/kailas-cloud/annex/internal/logger"
	"github.com/kailas-cloud/annex/internal/metrics"
	"github.com/kailas-cloud/annex/internal/store"
)

// Info is the externally visible description of a collection.
type Info struct {
	Name   string                  `json:"name"`
	Dim    int                     `json:"dim"`
	Config domain.CollectionConfig `json:"config"`
	Count  int                     `json:"count"`
}

// Service handles collection create/list/get/delete.
// The registry is in-process state, so the service uses it directly rather
// than through a storage port.
type Service struct {
	registry *store.Registry
}

// New creates a collection service.
func New(registry *store.Registry) *Service {
	return &Service{registry: registry}
}

// Create validates and registers a new collection.
func (s *Service) Create(ctx context.Context, name string, cfg domain.CollectionConfig, dim int) (Info, error) {
	col, err := s.registry.Create(name, cfg, dim)
	if err != nil {
		return Info{}, fmt.Errorf("create collection: %w", err)
	}

	metrics.CollectionsGauge.Set(float64(s.registry.Len()))
	logpkg.FromContext(ctx).Info("collection created",
		zap.String("collection", name),
		zap.Int("dim", dim),
		zap.String("distance", string(col.Config().Distance)),
		zap.Int("max_elements", col.Config().MaxElements),
	)
	return infoOf(col), nil
}

// List returns all collection names in lexicographic order.
func (s *Service) List(_ context.Context) []string {
	return s.registry.List()
}

// Get returns the description of one collection.
func (s *Service) Get(_ context.Context, name string) (Info, error) {
	col, err := s.registry.Get(name)
	if err != nil {
		return Info{}, fmt.Errorf("get collection: %w", err)
	}
	return infoOf(col), nil
}

// Delete removes a collection as a whole.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.registry.Delete(name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	metrics.CollectionsGauge.Set(float64(s.registry.Len()))
	logpkg.FromContext(ctx).Info("collection deleted", zap.String("collection", name))
	return nil
}

func infoOf(col *store.Collection) Info {
	return Info{
		Name:   col.Name(),
		Dim:    col.Dim(),
		Config: col.Config(),
		Count:  col.Count(),
	}
}
