package ports

import (
	"context"
	"time"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

// LocationReportInput is the DTO passed from the transport layer for a single
// location report.
type LocationReportInput struct {
	DriverID   string
	OrderID    string // empty when the driver is idle
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

// CurrentLocation is the live view of an order's latest point. Distance and
// ETA are re-derived from the order's original route estimate.
type CurrentLocation struct {
	Point              *domain.LocationPoint
	DistanceToTargetKm float64
	EtaMinutes         int
}

// NearbyDriver is one entry of a nearest-available-drivers result, ordered
// ascending by DistanceKm.
type NearbyDriver struct {
	DriverID    string
	Latitude    float64
	Longitude   float64
	DistanceKm  float64
	LastUpdated time.Time
}

// NearbyDelivery is one entry of a nearby-order-locations result.
type NearbyDelivery struct {
	OrderID    string
	DriverID   string
	Latitude   float64
	Longitude  float64
	DistanceKm float64
}

// DriverStatistics summarizes a driver's activity over a date range.
type DriverStatistics struct {
	TotalPoints          int
	TotalDistanceKm      float64
	TimeMovingMinutes    int64
	AverageSpeedKmh      float64
	StatusCounts         map[domain.VehicleStatus]int
	DistinctOrdersServed int
	OrderIDs             []string
}

// TrackingService is the core's caller-facing contract for location ingest,
// queries, and the order-lifecycle confirmations.
type TrackingService interface {
	// IngestLocation records a report, derives the vehicle status, refreshes
	// the latest-point views, and notifies order observers. Reports older
	// than the driver's current latest point are kept for audit but never
	// regress the latest view.
	IngestLocation(ctx context.Context, in LocationReportInput) (*domain.LocationPoint, error)

	CurrentLocation(ctx context.Context, orderID string) (*CurrentLocation, error)
	OrderHistory(ctx context.Context, orderID string) ([]*domain.LocationPoint, error)

	NearestDrivers(ctx context.Context, lat, lon, radiusKm float64) ([]NearbyDriver, error)
	NearbyDeliveries(ctx context.Context, lat, lon, radiusKm float64) ([]NearbyDelivery, error)

	// AcceptOrder applies PROCESSING→AWAITING_PICKUP: the driver must exist
	// and be available; the assignment is recorded in the order service.
	AcceptOrder(ctx context.Context, orderID, driverID string) error

	// ConfirmPickup applies AWAITING_PICKUP→IN_TRANSIT. The confirming driver
	// must be the assigned driver and within 1 km of the origin.
	ConfirmPickup(ctx context.Context, orderID, driverID string) error

	// ConfirmDelivery applies IN_TRANSIT→DELIVERED with the same actor check
	// against the destination.
	ConfirmDelivery(ctx context.Context, orderID, driverID string) error

	// CancelOrder force-cancels from any non-terminal state and emits an
	// order-cancelled event carrying the reason.
	CancelOrder(ctx context.Context, orderID, reason string) error

	// SweepStaleOrders cancels orders stuck in processing past the timeout,
	// returning how many were cancelled. Safe to re-run.
	SweepStaleOrders(ctx context.Context, staleAfter time.Duration) (int, error)

	DriverStatistics(ctx context.Context, driverID string, from, to time.Time) (*DriverStatistics, error)
}
