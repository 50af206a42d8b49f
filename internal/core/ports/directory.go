package ports

import (
	"context"
	"time"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

// OrderDetails is the order view the core needs from the order service.
type OrderDetails struct {
	ID                  string
	Status              domain.OrderStatus
	DriverID            string // empty until a driver accepts
	OriginLat           float64
	OriginLon           float64
	DestLat             float64
	DestLon             float64
	EstimatedDistanceKm float64
	EstimatedMinutes    int
	UpdatedAt           time.Time
}

// DriverDetails is the driver view the core needs from the user service.
type DriverDetails struct {
	ID           string
	Availability domain.VehicleStatus
}

// OrderDirectory abstracts the order service. Lookups must be callable
// synchronously from within a confirmation request; failures surface as
// domain.ErrUpstreamUnavailable so dependent operations fail closed.
type OrderDirectory interface {
	GetOrder(ctx context.Context, orderID string) (*OrderDetails, error)
	SetStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	AssignDriver(ctx context.Context, orderID, driverID string) error

	// ListStaleProcessing returns orders still in processing whose last update
	// is older than the cutoff. Used by the timeout sweep.
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*OrderDetails, error)
}

// DriverDirectory abstracts the user service's driver lookup.
type DriverDirectory interface {
	// GetDriver returns driver details or domain.ErrDriverNotFound.
	GetDriver(ctx context.Context, driverID string) (*DriverDetails, error)
}
