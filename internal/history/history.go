// Package history provides the recent-claims window used for network
// analysis.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultTTL is how long a fetched window stays cached.
const DefaultTTL = 5 * time.Minute

// Service reads claim windows from the repository through the cache.
type Service struct {
	source domain.ClaimSource
	cache  domain.Cache // optional
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates a history service. cache may be nil.
func NewService(source domain.ClaimSource, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		source: source,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
	}
}

// RecentClaims returns up to limit claims submitted within lookback.
func (s *Service) RecentClaims(ctx context.Context, tenantID string, lookback time.Duration, limit int) ([]*domain.Claim, error) {
	return s.ListClaimsSince(ctx, tenantID, s.now().Add(-lookback), limit)
}

// ListClaimsSince implements domain.ClaimSource. since is truncated to the
// hour so that callers within the same hour share a cached window.
func (s *Service) ListClaimsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if s.source == nil {
		return nil, fmt.Errorf("no data source available")
	}

	since = since.UTC().Truncate(time.Hour)
	key := fmt.Sprintf("claims:window:%d:%d", since.Unix(), limit)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, tenantID, key); err == nil && data != nil {
			var claims []*domain.Claim
			if err := json.Unmarshal(data, &claims); err == nil {
				return claims, nil
			}
		}
	}

	claims, err := s.source.ListClaimsSince(ctx, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(claims); err == nil {
			if err := s.cache.Set(ctx, tenantID, key, data, s.ttl); err != nil {
				slog.Debug("claim window cache write failed", "tenant_id", tenantID, "error", err)
			}
		}
	}
	return claims, nil
}
