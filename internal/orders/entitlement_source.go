package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-course-checkout/internal/checkout"
	"github.com/ariefcatur/go-course-checkout/internal/redisx"
)

// CachedEntitlementSource menyuplai duplicate filter dgn entitlement aktif
// buyer, cache-aside di Redis dgn TTL pendek. Cache miss / error = langsung
// ke DB; validasi tidak boleh gagal gara-gara cache.
type CachedEntitlementSource struct {
	Repo  *Repo
	Redis *redis.Client
}

func (s *CachedEntitlementSource) ActiveEntitlements(ctx context.Context, buyerID string) ([]checkout.Entitlement, error) {
	key := fmt.Sprintf(redisx.KeyEntitlements, buyerID)

	if raw, err := s.Redis.Get(ctx, key).Result(); err == nil && raw != "" {
		var cached []checkout.Entitlement
		if json.Unmarshal([]byte(raw), &cached) == nil {
			return cached, nil
		}
	}

	pairs, err := s.Repo.ActiveEntitlements(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	out := make([]checkout.Entitlement, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, checkout.Entitlement{ProductID: p.ProductID, EnrollKey: p.EnrollKey})
	}

	if b, err := json.Marshal(out); err == nil {
		_ = s.Redis.Set(ctx, key, b, redisx.TTLEntitlements).Err()
	}
	return out, nil
}
