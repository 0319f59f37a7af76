package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/ports"
	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
)

// CatalogTTL configures how long catalog reads are cached.
type CatalogTTL struct {
	Items      time.Duration
	Localities time.Duration
}

// CatalogService fronts the registry and the locality directory with a
// read-through cache for the stable data (items, states, cities).
// Point listings and point creation are never cached.
//
// It satisfies ports.Registry and ports.LocalityDirectory, so sessions use it
// in place of the raw clients.
type CatalogService struct {
	registry   ports.Registry
	localities ports.LocalityDirectory
	cache      ports.CacheService
	ttl        CatalogTTL
}

// NewCatalogService creates a new CatalogService. cache may be nil.
func NewCatalogService(registry ports.Registry, localities ports.LocalityDirectory, cache ports.CacheService, ttl CatalogTTL) *CatalogService {
	if ttl.Items <= 0 {
		ttl.Items = 10 * time.Minute
	}
	if ttl.Localities <= 0 {
		ttl.Localities = 24 * time.Hour
	}
	return &CatalogService{registry: registry, localities: localities, cache: cache, ttl: ttl}
}

// ListItems returns the recyclable-item catalog.
func (s *CatalogService) ListItems(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	if s.cached(ctx, "items", "catalog:items", &items) {
		return items, nil
	}

	items, err := s.registry.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	s.store(ctx, "catalog:items", items, s.ttl.Items)
	return items, nil
}

// ListPoints returns the points of a region offering the selected items.
func (s *CatalogService) ListPoints(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
	if q.Region.UF == "" || q.Region.City == "" {
		return nil, domain.NewValidationError("region", "uf and city are required")
	}
	return s.registry.ListPoints(ctx, q)
}

// CreatePoint registers a new collection point.
func (s *CatalogService) CreatePoint(ctx context.Context, reg *domain.PointRegistration) error {
	return s.registry.CreatePoint(ctx, reg)
}

// ListStates returns every state.
func (s *CatalogService) ListStates(ctx context.Context) ([]domain.State, error) {
	var states []domain.State
	if s.cached(ctx, "states", "localities:states", &states) {
		return states, nil
	}

	states, err := s.localities.ListStates(ctx)
	if err != nil {
		return nil, err
	}

	s.store(ctx, "localities:states", states, s.ttl.Localities)
	return states, nil
}

// ListCities returns the cities of a state.
func (s *CatalogService) ListCities(ctx context.Context, uf string) ([]domain.City, error) {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	if uf == "" {
		return nil, domain.NewValidationError("uf", "is required")
	}

	key := fmt.Sprintf("localities:cities:%s", uf)
	var cities []domain.City
	if s.cached(ctx, "cities", key, &cities) {
		return cities, nil
	}

	cities, err := s.localities.ListCities(ctx, uf)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, cities, s.ttl.Localities)
	return cities, nil
}

func (s *CatalogService) cached(ctx context.Context, op, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(op).Inc()
	return true
}

func (s *CatalogService) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_ = s.cache.Set(ctx, key, data, int(ttl.Seconds()))
	}
}
