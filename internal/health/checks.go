package health

import (
	"context"
	"fmt"

	"grimm.is/geoenrich/internal/geocache"
)

// PerformanceSource reports whether enrichment meets its success target.
// *enrich.Engine satisfies it.
type PerformanceSource interface {
	IsPerformingWell() bool
}

// CheckPerformance is degraded while the success rate is below target.
func CheckPerformance(src PerformanceSource) CheckFunc {
	return func(ctx context.Context) Check {
		if src.IsPerformingWell() {
			return Check{Status: StatusHealthy, Message: "success rate on target"}
		}
		return Check{Status: StatusDegraded, Message: "success rate below target"}
	}
}

// CheckDatabase is unhealthy when probe fails. A nil probe means no
// database is configured, which is degraded rather than fatal since the
// fallback tiers still answer.
func CheckDatabase(probe func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		if probe == nil {
			return Check{Status: StatusDegraded, Message: "no GeoIP database configured; using fallback tiers"}
		}
		if err := probe(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy, Message: "GeoIP database loaded"}
	}
}

// CheckCache reports cache occupancy. A full cache that is evicting is
// degraded.
func CheckCache(stats func() geocache.Stats) CheckFunc {
	return func(ctx context.Context) Check {
		s := stats()
		msg := fmt.Sprintf("%d/%d entries, hit rate %.1f%%", s.Size, s.MaxSize, s.HitRate*100)
		if s.MaxSize > 0 && s.Size >= s.MaxSize && s.EvictionCount > 0 {
			return Check{Status: StatusDegraded, Message: msg + ", evicting"}
		}
		return Check{Status: StatusHealthy, Message: msg}
	}
}
