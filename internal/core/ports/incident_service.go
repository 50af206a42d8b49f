package ports

import (
	"context"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

// ReportIncidentInput carries a driver's incident report. DurationHours and
// RadiusKm fall back to the domain defaults when zero.
type ReportIncidentInput struct {
	DriverID      string
	Latitude      float64
	Longitude     float64
	Type          domain.IncidentType
	DurationHours int
	RadiusKm      float64
}

// IncidentService manages geofenced incident alerts.
type IncidentService interface {
	// Report validates the reporter, persists the incident, and alerts each
	// distinct driver with a delivery inside the impact radius, once per
	// driver.
	Report(ctx context.Context, in ReportIncidentInput) (*domain.Incident, error)

	ListActive(ctx context.Context) ([]*domain.Incident, error)

	// Nearby returns active, non-expired incidents within radiusKm of the
	// given point.
	Nearby(ctx context.Context, lat, lon, radiusKm float64) ([]*domain.Incident, error)

	GetByID(ctx context.Context, id string) (*domain.Incident, error)

	// Deactivate closes an incident manually. Idempotent.
	Deactivate(ctx context.Context, id string) error

	// ExpireSweep deactivates all expired incidents, returning the count.
	ExpireSweep(ctx context.Context) (int64, error)
}
