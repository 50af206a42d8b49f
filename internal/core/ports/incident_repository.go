package ports

import (
	"context"
	"time"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

// IncidentRepository defines persistence operations for incidents. Incidents
// are never deleted; deactivation flips the active flag.
type IncidentRepository interface {
	Insert(ctx context.Context, inc *domain.Incident) error

	// FindByID returns the incident or domain.ErrIncidentNotFound.
	FindByID(ctx context.Context, id string) (*domain.Incident, error)

	// ListActive returns incidents with active=true and expires_at after now.
	ListActive(ctx context.Context, now time.Time) ([]*domain.Incident, error)

	// Deactivate sets active=false. Idempotent: deactivating an already
	// inactive incident succeeds. Returns domain.ErrIncidentNotFound when the
	// id is unknown.
	Deactivate(ctx context.Context, id string) error

	// DeactivateExpired atomically flips active=false for every incident with
	// active=true and expires_at before now, returning the number affected.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
