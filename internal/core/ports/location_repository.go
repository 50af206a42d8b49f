package ports

import (
	"context"
	"time"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

// LocationRepository defines persistence operations for location points. The
// store is append-only: points are inserted and queried, never mutated.
type LocationRepository interface {
	// Insert appends an immutable point. Failures are wrapped in
	// domain.ErrStorage.
	Insert(ctx context.Context, p *domain.LocationPoint) error

	// LatestByDriver returns the most recent point for a driver, or
	// domain.ErrLocationNotFound.
	LatestByDriver(ctx context.Context, driverID string) (*domain.LocationPoint, error)

	// LatestByOrder returns the most recent point recorded for an order, or
	// domain.ErrLocationNotFound.
	LatestByOrder(ctx context.Context, orderID string) (*domain.LocationPoint, error)

	// HistoryByOrder returns all points for an order, most recent first.
	HistoryByOrder(ctx context.Context, orderID string) ([]*domain.LocationPoint, error)

	// HistoryByDriver returns a driver's points within [from, to], oldest
	// first (the natural order for distance accumulation).
	HistoryByDriver(ctx context.Context, driverID string, from, to time.Time) ([]*domain.LocationPoint, error)

	// LatestPerDriver returns the latest point of every driver, used to seed
	// the proximity index at startup.
	LatestPerDriver(ctx context.Context) ([]*domain.LocationPoint, error)
}
