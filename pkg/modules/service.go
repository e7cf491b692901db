package modules

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Service produces per-tenant licensing snapshots, caching them briefly
// so the navigation endpoint does not hit the database on every render.
type Service struct {
	store *Store
	cache *expirable.LRU[int64, Licensing]
}

// NewService creates a licensing service. ttl bounds how stale a cached
// snapshot may be; licensing changes are rare and tolerate short lag.
func NewService(store *Store, ttl time.Duration) *Service {
	return &Service{
		store: store,
		cache: expirable.NewLRU[int64, Licensing](512, nil, ttl),
	}
}

// Snapshot returns the tenant's licensing state. Registry and tenant
// rows are loaded together so a snapshot is internally consistent.
func (s *Service) Snapshot(ctx context.Context, tenantID int64) (Licensing, error) {
	if cached, ok := s.cache.Get(tenantID); ok {
		return cached, nil
	}

	registry, err := s.store.ListModules(ctx)
	if err != nil {
		return Licensing{}, err
	}
	licensed, err := s.store.ListTenantModules(ctx, tenantID)
	if err != nil {
		return Licensing{}, err
	}

	snapshot := NewLicensing(registry, licensed)
	s.cache.Add(tenantID, snapshot)
	return snapshot, nil
}

// Invalidate drops the cached snapshot for a tenant after a licensing
// or registry change.
func (s *Service) Invalidate(tenantID int64) {
	s.cache.Remove(tenantID)
}
