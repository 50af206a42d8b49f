package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
	"github.com/roadsync/tracking-system/pkg/geo"
)

// AlertDedup suppresses repeated incident alerts to the same driver. Backed
// by Redis in production; failures degrade to alerting (never to silence).
type AlertDedup interface {
	SeenAlert(ctx context.Context, incidentID, driverID string) (bool, error)
	MarkAlert(ctx context.Context, incidentID, driverID string, ttl time.Duration) error
}

type incidentService struct {
	incidents ports.IncidentRepository
	index     ports.ProximityIndex
	drivers   ports.DriverDirectory
	bus       ports.EventBus
	dedup     AlertDedup // optional
	log       zerolog.Logger
}

// NewIncidentService returns an IncidentService implementation. dedup may be
// nil, in which case only the in-request per-driver dedup applies.
func NewIncidentService(
	incidents ports.IncidentRepository,
	index ports.ProximityIndex,
	drivers ports.DriverDirectory,
	bus ports.EventBus,
	dedup AlertDedup,
	log zerolog.Logger,
) ports.IncidentService {
	return &incidentService{
		incidents: incidents,
		index:     index,
		drivers:   drivers,
		bus:       bus,
		dedup:     dedup,
		log:       log,
	}
}

type incidentAlertEvent struct {
	IncidentID string              `json:"incident_id"`
	DriverID   string              `json:"driver_id"`
	Type       domain.IncidentType `json:"type"`
	Latitude   float64             `json:"latitude"`
	Longitude  float64             `json:"longitude"`
	RadiusKm   float64             `json:"radius_km"`
	ExpiresAt  time.Time           `json:"expires_at"`
}

// Report validates the reporter, persists the incident with its defaults,
// then alerts every distinct driver with a delivery inside the impact radius.
func (s *incidentService) Report(ctx context.Context, in ports.ReportIncidentInput) (*domain.Incident, error) {
	if _, err := s.drivers.GetDriver(ctx, in.DriverID); err != nil {
		return nil, fmt.Errorf("report incident: %w", err)
	}

	duration := in.DurationHours
	if duration <= 0 {
		duration = domain.DefaultIncidentDurationHours
	}
	radius := in.RadiusKm
	if radius <= 0 {
		radius = domain.DefaultIncidentRadiusKm
	}

	now := time.Now().UTC()
	incident := &domain.Incident{
		ID:               uuid.NewString(),
		ReporterDriverID: in.DriverID,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		Type:             in.Type,
		ReportedAt:       now,
		ExpiresAt:        now.Add(time.Duration(duration) * time.Hour),
		ImpactRadiusKm:   radius,
		Active:           true,
	}

	if err := s.incidents.Insert(ctx, incident); err != nil {
		return nil, fmt.Errorf("report incident: %w", err)
	}

	s.alertImpactedDrivers(ctx, incident)

	s.log.Info().
		Str("incident_id", incident.ID).
		Str("type", string(incident.Type)).
		Float64("radius_km", incident.ImpactRadiusKm).
		Msg("incident reported")
	return incident, nil
}

// alertImpactedDrivers emits one incident-alert per distinct driver with a
// delivery inside the radius. A driver serving several nearby orders is
// alerted once. Alert delivery is best-effort.
func (s *incidentService) alertImpactedDrivers(ctx context.Context, incident *domain.Incident) {
	nearby := s.index.NearbyOrders(incident.Latitude, incident.Longitude, incident.ImpactRadiusKm)

	seen := make(map[string]struct{}, len(nearby))
	for _, delivery := range nearby {
		if delivery.DriverID == "" {
			continue
		}
		if _, ok := seen[delivery.DriverID]; ok {
			continue
		}
		seen[delivery.DriverID] = struct{}{}

		if s.dedup != nil {
			dup, err := s.dedup.SeenAlert(ctx, incident.ID, delivery.DriverID)
			if err != nil {
				s.log.Warn().Err(err).Str("driver_id", delivery.DriverID).Msg("alert dedup check failed, alerting anyway")
			} else if dup {
				continue
			}
			ttl := time.Until(incident.ExpiresAt)
			if err := s.dedup.MarkAlert(ctx, incident.ID, delivery.DriverID, ttl); err != nil {
				s.log.Warn().Err(err).Str("driver_id", delivery.DriverID).Msg("alert dedup mark failed")
			}
		}

		if s.bus == nil {
			continue
		}
		event := incidentAlertEvent{
			IncidentID: incident.ID,
			DriverID:   delivery.DriverID,
			Type:       incident.Type,
			Latitude:   incident.Latitude,
			Longitude:  incident.Longitude,
			RadiusKm:   incident.ImpactRadiusKm,
			ExpiresAt:  incident.ExpiresAt,
		}
		if err := s.bus.Publish(ctx, ports.TopicIncidentAlert, event); err != nil {
			s.log.Warn().Err(err).Str("driver_id", delivery.DriverID).Msg("incident alert publish failed, dropping")
		}
	}
}

func (s *incidentService) ListActive(ctx context.Context) ([]*domain.Incident, error) {
	incidents, err := s.incidents.ListActive(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active incidents: %w", err)
	}
	return incidents, nil
}

// Nearby filters active, non-expired incidents by distance from the given
// point, using the incident's own coordinates.
func (s *incidentService) Nearby(ctx context.Context, lat, lon, radiusKm float64) ([]*domain.Incident, error) {
	active, err := s.incidents.ListActive(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("nearby incidents: %w", err)
	}

	nearby := make([]*domain.Incident, 0, len(active))
	for _, inc := range active {
		if geo.DistanceKm(lat, lon, inc.Latitude, inc.Longitude) <= radiusKm {
			nearby = append(nearby, inc)
		}
	}
	return nearby, nil
}

func (s *incidentService) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	incident, err := s.incidents.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

func (s *incidentService) Deactivate(ctx context.Context, id string) error {
	if err := s.incidents.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("deactivate incident: %w", err)
	}
	s.log.Info().Str("incident_id", id).Msg("incident deactivated")
	return nil
}

// ExpireSweep flips active=false for all expired incidents in one update.
// Re-running after a crash is safe: already-flipped rows no longer match.
func (s *incidentService) ExpireSweep(ctx context.Context) (int64, error) {
	count, err := s.incidents.DeactivateExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("incident expiry sweep: %w", err)
	}
	if count > 0 {
		s.log.Info().Int64("count", count).Msg("expired incidents deactivated")
	}
	return count, nil
}
