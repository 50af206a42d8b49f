package ports

import (
	"context"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

// ProximityIndex answers radius queries against the latest-point-per-entity
// snapshot. Results must be equivalent to exhaustive Haversine computation
// over that snapshot: exact distances, ascending order, one entry per entity.
type ProximityIndex interface {
	// Upsert replaces the entity's indexed position with the given point.
	Upsert(p *domain.LocationPoint)

	// NearestAvailableDrivers returns drivers whose latest point is available
	// and within radiusKm, ordered ascending by distance.
	NearestAvailableDrivers(lat, lon, radiusKm float64) []NearbyDriver

	// NearbyOrders returns the latest point of each order within radiusKm,
	// regardless of vehicle status, ordered ascending by distance.
	NearbyOrders(lat, lon, radiusKm float64) []NearbyDelivery
}

// LocationNotifier receives every accepted location point for fan-out to
// order observers. Delivery is best-effort and must never fail the ingest.
type LocationNotifier interface {
	Notify(p *domain.LocationPoint)
}

// LatestLocationCache mirrors the latest point per driver into a shared cache
// so sibling services can read current positions without hitting the store.
// Writes are best-effort.
type LatestLocationCache interface {
	Store(ctx context.Context, p *domain.LocationPoint) error
}
