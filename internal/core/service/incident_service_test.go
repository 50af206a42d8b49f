package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
	"github.com/roadsync/tracking-system/internal/proximity"
)

type stubIncidentRepo struct {
	incidents map[string]*domain.Incident
	insertErr error
}

func newStubIncidentRepo() *stubIncidentRepo {
	return &stubIncidentRepo{incidents: make(map[string]*domain.Incident)}
}

func (r *stubIncidentRepo) Insert(_ context.Context, inc *domain.Incident) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	clone := *inc
	r.incidents[inc.ID] = &clone
	return nil
}

func (r *stubIncidentRepo) FindByID(_ context.Context, id string) (*domain.Incident, error) {
	inc, ok := r.incidents[id]
	if !ok {
		return nil, domain.ErrIncidentNotFound
	}
	clone := *inc
	return &clone, nil
}

func (r *stubIncidentRepo) ListActive(_ context.Context, now time.Time) ([]*domain.Incident, error) {
	var out []*domain.Incident
	for _, inc := range r.incidents {
		if inc.Active && inc.ExpiresAt.After(now) {
			clone := *inc
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *stubIncidentRepo) Deactivate(_ context.Context, id string) error {
	inc, ok := r.incidents[id]
	if !ok {
		return domain.ErrIncidentNotFound
	}
	inc.Active = false
	return nil
}

func (r *stubIncidentRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, inc := range r.incidents {
		if inc.Active && !inc.ExpiresAt.After(now) {
			inc.Active = false
			n++
		}
	}
	return n, nil
}

type stubDedup struct {
	seen map[string]bool
}

func (d *stubDedup) key(incidentID, driverID string) string { return incidentID + ":" + driverID }

func (d *stubDedup) SeenAlert(_ context.Context, incidentID, driverID string) (bool, error) {
	return d.seen[d.key(incidentID, driverID)], nil
}

func (d *stubDedup) MarkAlert(_ context.Context, incidentID, driverID string, _ time.Duration) error {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[d.key(incidentID, driverID)] = true
	return nil
}

type incidentFixture struct {
	repo    *stubIncidentRepo
	index   *proximity.Index
	drivers *stubDriverDirectory
	bus     *stubBus
	dedup   *stubDedup
	svc     ports.IncidentService
}

func newIncidentFixture() *incidentFixture {
	f := &incidentFixture{
		repo:    newStubIncidentRepo(),
		index:   proximity.NewIndex(),
		drivers: &stubDriverDirectory{drivers: make(map[string]*ports.DriverDetails)},
		bus:     &stubBus{},
		dedup:   &stubDedup{},
	}
	f.drivers.drivers["reporter"] = &ports.DriverDetails{ID: "reporter", Availability: domain.VehicleMoving}
	f.svc = NewIncidentService(f.repo, f.index, f.drivers, f.bus, f.dedup, zerolog.Nop())
	return f
}

func (f *incidentFixture) deliveryAt(driverID, orderID string, lat, lon float64) {
	f.index.Upsert(&domain.LocationPoint{
		DriverID:      driverID,
		OrderID:       orderID,
		Latitude:      lat,
		Longitude:     lon,
		CapturedAt:    time.Now().UTC(),
		VehicleStatus: domain.VehicleMoving,
	})
}

func TestReportIncidentAppliesDefaults(t *testing.T) {
	f := newIncidentFixture()

	before := time.Now().UTC()
	inc, err := f.svc.Report(context.Background(), ports.ReportIncidentInput{
		DriverID: "reporter",
		Latitude: 10,
		Longitude: 20,
		Type:     domain.IncidentAccident,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inc.ID == "" {
		t.Error("incident id not assigned")
	}
	if !inc.Active {
		t.Error("new incident must be active")
	}
	if inc.ImpactRadiusKm != domain.DefaultIncidentRadiusKm {
		t.Errorf("radius = %f, want default %f", inc.ImpactRadiusKm, domain.DefaultIncidentRadiusKm)
	}
	wantExpiry := before.Add(domain.DefaultIncidentDurationHours * time.Hour)
	if inc.ExpiresAt.Before(wantExpiry) || inc.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expiry = %v, want ≈%v", inc.ExpiresAt, wantExpiry)
	}
	if _, err := f.repo.FindByID(context.Background(), inc.ID); err != nil {
		t.Errorf("incident not persisted: %v", err)
	}
}

func TestReportIncidentUnknownReporter(t *testing.T) {
	f := newIncidentFixture()

	_, err := f.svc.Report(context.Background(), ports.ReportIncidentInput{
		DriverID: "nobody", Type: domain.IncidentOther,
	})
	if !errors.Is(err, domain.ErrDriverNotFound) {
		t.Errorf("err = %v, want ErrDriverNotFound", err)
	}
}

func TestReportIncidentAlertsEachImpactedDriverOnce(t *testing.T) {
	f := newIncidentFixture()
	// drv-1 serves two deliveries inside the radius, drv-2 one inside,
	// drv-3 is well outside.
	f.deliveryAt("drv-1", "ord-1", 0.001, 0)
	f.deliveryAt("drv-1", "ord-2", 0.002, 0)
	f.deliveryAt("drv-2", "ord-3", 0, 0.001)
	f.deliveryAt("drv-3", "ord-4", 2, 2)

	_, err := f.svc.Report(context.Background(), ports.ReportIncidentInput{
		DriverID: "reporter", Latitude: 0, Longitude: 0,
		Type: domain.IncidentRoadBlock, RadiusKm: 1.0, DurationHours: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alerts := f.bus.byTopic(ports.TopicIncidentAlert)
	alerted := make(map[string]int)
	for _, e := range alerts {
		alerted[e.payload.(incidentAlertEvent).DriverID]++
	}
	if len(alerts) != 2 || alerted["drv-1"] != 1 || alerted["drv-2"] != 1 {
		t.Errorf("alerts = %+v, want one each for drv-1 and drv-2", alerted)
	}
}

func TestReportIncidentDedupAcrossReports(t *testing.T) {
	f := newIncidentFixture()
	f.deliveryAt("drv-1", "ord-1", 0.001, 0)

	inc, err := f.svc.Report(context.Background(), ports.ReportIncidentInput{
		DriverID: "reporter", Latitude: 0, Longitude: 0, Type: domain.IncidentWeather,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulate a retried fan-out for the same incident: already marked.
	seen, err := f.dedup.SeenAlert(context.Background(), inc.ID, "drv-1")
	if err != nil || !seen {
		t.Fatalf("seen = %v, err = %v, want marked", seen, err)
	}
}

func TestNearbyFiltersByDistance(t *testing.T) {
	f := newIncidentFixture()
	near, _ := f.svc.Report(context.Background(), ports.ReportIncidentInput{
		DriverID: "reporter", Latitude: 0.001, Longitude: 0, Type: domain.IncidentAccident,
	})
	_, err := f.svc.Report(context.Background(), ports.ReportIncidentInput{
		DriverID: "reporter", Latitude: 3, Longitude: 3, Type: domain.IncidentAccident,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := f.svc.Nearby(context.Background(), 0, 0, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 || found[0].ID != near.ID {
		t.Errorf("nearby = %+v, want only the close incident", found)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	f := newIncidentFixture()
	inc, _ := f.svc.Report(context.Background(), ports.ReportIncidentInput{
		DriverID: "reporter", Type: domain.IncidentOther,
	})

	if err := f.svc.Deactivate(context.Background(), inc.ID); err != nil {
		t.Fatalf("first deactivate: %v", err)
	}
	if err := f.svc.Deactivate(context.Background(), inc.ID); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}

	got, _ := f.svc.GetByID(context.Background(), inc.ID)
	if got.Active {
		t.Error("incident still active after deactivation")
	}
}

func TestDeactivateUnknownIncident(t *testing.T) {
	f := newIncidentFixture()
	err := f.svc.Deactivate(context.Background(), "missing")
	if !errors.Is(err, domain.ErrIncidentNotFound) {
		t.Errorf("err = %v, want ErrIncidentNotFound", err)
	}
}

func TestExpireSweep(t *testing.T) {
	f := newIncidentFixture()
	now := time.Now().UTC()
	f.repo.incidents["expired-1"] = &domain.Incident{ID: "expired-1", Active: true, ExpiresAt: now.Add(-time.Hour)}
	f.repo.incidents["expired-2"] = &domain.Incident{ID: "expired-2", Active: true, ExpiresAt: now.Add(-time.Minute)}
	f.repo.incidents["live"] = &domain.Incident{ID: "live", Active: true, ExpiresAt: now.Add(time.Hour)}
	f.repo.incidents["closed"] = &domain.Incident{ID: "closed", Active: false, ExpiresAt: now.Add(-time.Hour)}

	count, err := f.svc.ExpireSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if !f.repo.incidents["live"].Active {
		t.Error("live incident must stay active")
	}
}
