package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
	"github.com/roadsync/tracking-system/internal/proximity"
	"github.com/roadsync/tracking-system/internal/stream"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubLocationRepo struct {
	points    []*domain.LocationPoint // insertion order
	insertErr error
}

func (r *stubLocationRepo) Insert(_ context.Context, p *domain.LocationPoint) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	clone := *p
	r.points = append(r.points, &clone)
	return nil
}

// latest scans in insertion order; an equal timestamp replaces the previous
// winner, mirroring the arrival-order tie-break of the real store.
func (r *stubLocationRepo) latest(match func(*domain.LocationPoint) bool) (*domain.LocationPoint, error) {
	var best *domain.LocationPoint
	for _, p := range r.points {
		if !match(p) {
			continue
		}
		if best == nil || !p.CapturedAt.Before(best.CapturedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, domain.ErrLocationNotFound
	}
	clone := *best
	return &clone, nil
}

func (r *stubLocationRepo) LatestByDriver(_ context.Context, driverID string) (*domain.LocationPoint, error) {
	return r.latest(func(p *domain.LocationPoint) bool { return p.DriverID == driverID })
}

func (r *stubLocationRepo) LatestByOrder(_ context.Context, orderID string) (*domain.LocationPoint, error) {
	return r.latest(func(p *domain.LocationPoint) bool { return p.OrderID == orderID })
}

func (r *stubLocationRepo) HistoryByOrder(_ context.Context, orderID string) ([]*domain.LocationPoint, error) {
	var out []*domain.LocationPoint
	for _, p := range r.points {
		if p.OrderID == orderID {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	return out, nil
}

func (r *stubLocationRepo) HistoryByDriver(_ context.Context, driverID string, from, to time.Time) ([]*domain.LocationPoint, error) {
	var out []*domain.LocationPoint
	for _, p := range r.points {
		if p.DriverID == driverID && !p.CapturedAt.Before(from) && !p.CapturedAt.After(to) {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

func (r *stubLocationRepo) LatestPerDriver(_ context.Context) ([]*domain.LocationPoint, error) {
	byDriver := make(map[string]*domain.LocationPoint)
	for _, p := range r.points {
		best := byDriver[p.DriverID]
		if best == nil || !p.CapturedAt.Before(best.CapturedAt) {
			byDriver[p.DriverID] = p
		}
	}
	out := make([]*domain.LocationPoint, 0, len(byDriver))
	for _, p := range byDriver {
		clone := *p
		out = append(out, &clone)
	}
	return out, nil
}

type statusChange struct {
	orderID string
	status  domain.OrderStatus
}

type stubOrderDirectory struct {
	orders      map[string]*ports.OrderDetails
	stale       []*ports.OrderDetails
	setCalls    []statusChange
	assignCalls map[string]string
	getErr      error
	setErr      error
}

func newStubOrderDirectory() *stubOrderDirectory {
	return &stubOrderDirectory{
		orders:      make(map[string]*ports.OrderDetails),
		assignCalls: make(map[string]string),
	}
}

func (d *stubOrderDirectory) GetOrder(_ context.Context, orderID string) (*ports.OrderDetails, error) {
	if d.getErr != nil {
		return nil, d.getErr
	}
	o, ok := d.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	clone := *o
	return &clone, nil
}

func (d *stubOrderDirectory) SetStatus(_ context.Context, orderID string, status domain.OrderStatus) error {
	if d.setErr != nil {
		return d.setErr
	}
	d.setCalls = append(d.setCalls, statusChange{orderID: orderID, status: status})
	if o, ok := d.orders[orderID]; ok {
		o.Status = status
	}
	return nil
}

func (d *stubOrderDirectory) AssignDriver(_ context.Context, orderID, driverID string) error {
	d.assignCalls[orderID] = driverID
	if o, ok := d.orders[orderID]; ok {
		o.DriverID = driverID
	}
	return nil
}

func (d *stubOrderDirectory) ListStaleProcessing(_ context.Context, _ time.Time) ([]*ports.OrderDetails, error) {
	return d.stale, nil
}

type stubDriverDirectory struct {
	drivers map[string]*ports.DriverDetails
	err     error
}

func (d *stubDriverDirectory) GetDriver(_ context.Context, driverID string) (*ports.DriverDetails, error) {
	if d.err != nil {
		return nil, d.err
	}
	drv, ok := d.drivers[driverID]
	if !ok {
		return nil, domain.ErrDriverNotFound
	}
	return drv, nil
}

type publishedEvent struct {
	topic   string
	payload any
}

type stubBus struct {
	events []publishedEvent
	err    error
}

func (b *stubBus) Publish(_ context.Context, topic string, payload any) error {
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (b *stubBus) byTopic(topic string) []publishedEvent {
	var out []publishedEvent
	for _, e := range b.events {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type trackingFixture struct {
	repo     *stubLocationRepo
	orders   *stubOrderDirectory
	drivers  *stubDriverDirectory
	bus      *stubBus
	index    *proximity.Index
	registry *stream.Registry
	svc      ports.TrackingService
}

func newTrackingFixture() *trackingFixture {
	f := &trackingFixture{
		repo:     &stubLocationRepo{},
		orders:   newStubOrderDirectory(),
		drivers:  &stubDriverDirectory{drivers: make(map[string]*ports.DriverDetails)},
		bus:      &stubBus{},
		index:    proximity.NewIndex(),
		registry: stream.NewRegistry(zerolog.Nop()),
	}
	f.svc = NewTrackingService(f.repo, f.orders, f.drivers, f.bus, f.index, f.registry, nil, zerolog.Nop())
	return f
}

func (f *trackingFixture) seedOrder(id string, status domain.OrderStatus, driverID string) {
	f.orders.orders[id] = &ports.OrderDetails{
		ID:                  id,
		Status:              status,
		DriverID:            driverID,
		OriginLat:           0,
		OriginLon:           0,
		DestLat:             1,
		DestLon:             1,
		EstimatedDistanceKm: 157.2,
		EstimatedMinutes:    120,
	}
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngestIdleDriverBecomesAvailable(t *testing.T) {
	f := newTrackingFixture()

	point, err := f.svc.IngestLocation(context.Background(), ports.LocationReportInput{
		DriverID:   "drv-1",
		Latitude:   0,
		Longitude:  0,
		CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if point.VehicleStatus != domain.VehicleAvailable {
		t.Errorf("status = %s, want available", point.VehicleStatus)
	}

	events := f.bus.byTopic(ports.TopicDriverStatusChanged)
	if len(events) != 1 {
		t.Fatalf("driver-status-changed events = %d, want 1", len(events))
	}

	// The driver is now findable via proximity search ≈157 m away.
	nearby, err := f.svc.NearestDrivers(context.Background(), 0.001, 0.001, 5.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nearby) != 1 || nearby[0].DriverID != "drv-1" {
		t.Fatalf("nearby = %+v, want drv-1", nearby)
	}
	if math.Abs(nearby[0].DistanceKm-0.157) > 0.001 {
		t.Errorf("distance = %f, want ≈0.157", nearby[0].DistanceKm)
	}
}

func TestIngestNotifiesOrderObservers(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderInTransit, "drv-1")
	sub := f.registry.Subscribe("ord-1")

	_, err := f.svc.IngestLocation(context.Background(), ports.LocationReportInput{
		DriverID:   "drv-1",
		OrderID:    "ord-1",
		Latitude:   0.5,
		Longitude:  0.5,
		CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case p := <-sub.Events():
		if p.OrderID != "ord-1" || p.VehicleStatus != domain.VehicleMoving {
			t.Errorf("observed point = %+v", p)
		}
	default:
		t.Fatal("observer received no point")
	}
}

func TestIngestStaleReportDoesNotRegressLatest(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderInTransit, "drv-1")
	now := time.Now().UTC()

	_, err := f.svc.IngestLocation(context.Background(), ports.LocationReportInput{
		DriverID: "drv-1", OrderID: "ord-1", Latitude: 0.5, Longitude: 0.5, CapturedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sub := f.registry.Subscribe("ord-1")

	// Older report arrives late.
	_, err = f.svc.IngestLocation(context.Background(), ports.LocationReportInput{
		DriverID: "drv-1", OrderID: "ord-1", Latitude: 0.1, Longitude: 0.1, CapturedAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Kept in history...
	history, _ := f.svc.OrderHistory(context.Background(), "ord-1")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	// ...but the latest view, the index, and observers are untouched.
	latest, _ := f.repo.LatestByOrder(context.Background(), "ord-1")
	if latest.Latitude != 0.5 {
		t.Errorf("latest lat = %f, want 0.5", latest.Latitude)
	}
	if len(sub.Events()) != 0 {
		t.Error("stale report must not reach observers")
	}
	deliveries, _ := f.svc.NearbyDeliveries(context.Background(), 0.5, 0.5, 1.0)
	if len(deliveries) != 1 || deliveries[0].Latitude != 0.5 {
		t.Errorf("index regressed: %+v", deliveries)
	}
}

func TestIngestUpstreamFailureFailsClosed(t *testing.T) {
	f := newTrackingFixture()
	f.orders.getErr = domain.ErrUpstreamUnavailable

	_, err := f.svc.IngestLocation(context.Background(), ports.LocationReportInput{
		DriverID: "drv-1", OrderID: "ord-1", Latitude: 0, Longitude: 0, CapturedAt: time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

// ---------------------------------------------------------------------------
// Confirmations
// ---------------------------------------------------------------------------

func (f *trackingFixture) driverAt(t *testing.T, driverID, orderID string, lat, lon float64) {
	t.Helper()
	_, err := f.svc.IngestLocation(context.Background(), ports.LocationReportInput{
		DriverID: driverID, OrderID: orderID, Latitude: lat, Longitude: lon, CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed location: %v", err)
	}
}

func TestConfirmPickupTooFarFromOrigin(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderAwaitingPickup, "drv-1")
	// ~3 km from the (0,0) origin.
	f.driverAt(t, "drv-1", "ord-1", 0.027, 0)

	err := f.svc.ConfirmPickup(context.Background(), "ord-1", "drv-1")
	if !errors.Is(err, domain.ErrPreconditionNotMet) {
		t.Errorf("err = %v, want ErrPreconditionNotMet", err)
	}
	if len(f.orders.setCalls) != 0 {
		t.Error("status must not change on failed precondition")
	}
}

func TestConfirmPickupWithinRadius(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderAwaitingPickup, "drv-1")
	// ~550 m from origin.
	f.driverAt(t, "drv-1", "ord-1", 0.005, 0)

	if err := f.svc.ConfirmPickup(context.Background(), "ord-1", "drv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.orders.setCalls) != 1 || f.orders.setCalls[0].status != domain.OrderInTransit {
		t.Fatalf("setCalls = %+v, want in_transit", f.orders.setCalls)
	}
	if events := f.bus.byTopic(ports.TopicStatusChanged); len(events) != 1 {
		t.Errorf("status-changed events = %d, want 1", len(events))
	}
}

func TestConfirmPickupWrongDriver(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderAwaitingPickup, "drv-1")
	f.driverAt(t, "drv-2", "", 0.001, 0)

	err := f.svc.ConfirmPickup(context.Background(), "ord-1", "drv-2")
	if !errors.Is(err, domain.ErrPreconditionNotMet) {
		t.Errorf("err = %v, want ErrPreconditionNotMet", err)
	}
}

func TestConfirmPickupWrongState(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderProcessing, "drv-1")

	err := f.svc.ConfirmPickup(context.Background(), "ord-1", "drv-1")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestConfirmDeliveryWithinRadiusOfDestination(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderInTransit, "drv-1")
	// ~550 m from the (1,1) destination.
	f.driverAt(t, "drv-1", "ord-1", 1.005, 1)

	if err := f.svc.ConfirmDelivery(context.Background(), "ord-1", "drv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.orders.setCalls) != 1 || f.orders.setCalls[0].status != domain.OrderDelivered {
		t.Fatalf("setCalls = %+v, want delivered", f.orders.setCalls)
	}

	// Driver goes back to available.
	events := f.bus.byTopic(ports.TopicDriverStatusChanged)
	last := events[len(events)-1].payload.(driverStatusEvent)
	if last.Status != domain.VehicleAvailable {
		t.Errorf("driver status = %s, want available", last.Status)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestAcceptOrder(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderProcessing, "")
	f.drivers.drivers["drv-1"] = &ports.DriverDetails{ID: "drv-1", Availability: domain.VehicleAvailable}

	if err := f.svc.AcceptOrder(context.Background(), "ord-1", "drv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.orders.assignCalls["ord-1"] != "drv-1" {
		t.Error("driver assignment not recorded")
	}
	if f.orders.orders["ord-1"].Status != domain.OrderAwaitingPickup {
		t.Errorf("status = %s, want awaiting_pickup", f.orders.orders["ord-1"].Status)
	}
}

func TestAcceptOrderDriverNotAvailable(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderProcessing, "")
	f.drivers.drivers["drv-1"] = &ports.DriverDetails{ID: "drv-1", Availability: domain.VehicleMoving}

	err := f.svc.AcceptOrder(context.Background(), "ord-1", "drv-1")
	if !errors.Is(err, domain.ErrPreconditionNotMet) {
		t.Errorf("err = %v, want ErrPreconditionNotMet", err)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderProcessing, "")

	if err := f.svc.CancelOrder(context.Background(), "ord-1", "customer request"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := f.bus.byTopic(ports.TopicOrderCancelled)
	if len(events) != 1 {
		t.Fatalf("order-cancelled events = %d, want 1", len(events))
	}
	if reason := events[0].payload.(orderCancelledEvent).Reason; reason != "customer request" {
		t.Errorf("reason = %q", reason)
	}
}

func TestCancelDeliveredOrderFails(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderDelivered, "drv-1")

	err := f.svc.CancelOrder(context.Background(), "ord-1", "too late")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelCancelledOrderIsNoOp(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderCancelled, "")

	if err := f.svc.CancelOrder(context.Background(), "ord-1", "again"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.bus.events) != 0 {
		t.Error("no-op cancel must not emit events")
	}
}

func TestSweepStaleOrders(t *testing.T) {
	f := newTrackingFixture()
	f.seedOrder("ord-1", domain.OrderProcessing, "")
	f.seedOrder("ord-2", domain.OrderProcessing, "")
	f.orders.stale = []*ports.OrderDetails{f.orders.orders["ord-1"], f.orders.orders["ord-2"]}

	count, err := f.svc.SweepStaleOrders(context.Background(), 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	for _, e := range f.bus.byTopic(ports.TopicOrderCancelled) {
		if e.payload.(orderCancelledEvent).Reason != "no available driver" {
			t.Errorf("reason = %q", e.payload.(orderCancelledEvent).Reason)
		}
	}
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

func TestDriverStatisticsUnknownDriver(t *testing.T) {
	f := newTrackingFixture()
	_, err := f.svc.DriverStatistics(context.Background(), "drv-x", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, domain.ErrDriverNotFound) {
		t.Errorf("err = %v, want ErrDriverNotFound", err)
	}
}

func TestDriverStatistics(t *testing.T) {
	f := newTrackingFixture()
	f.drivers.drivers["drv-1"] = &ports.DriverDetails{ID: "drv-1", Availability: domain.VehicleAvailable}

	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	seed := []*domain.LocationPoint{
		{DriverID: "drv-1", OrderID: "ord-1", Latitude: 0, Longitude: 0, CapturedAt: t0, VehicleStatus: domain.VehicleMoving},
		{DriverID: "drv-1", OrderID: "ord-1", Latitude: 0.01, Longitude: 0, CapturedAt: t0.Add(10 * time.Minute), VehicleStatus: domain.VehicleMoving},
		{DriverID: "drv-1", OrderID: "ord-1", Latitude: 0.01, Longitude: 0, CapturedAt: t0.Add(20 * time.Minute), VehicleStatus: domain.VehicleStopped},
		{DriverID: "drv-1", OrderID: "ord-2", Latitude: 0.02, Longitude: 0, CapturedAt: t0.Add(30 * time.Minute), VehicleStatus: domain.VehicleMoving},
	}
	for _, p := range seed {
		if err := f.repo.Insert(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := f.svc.DriverStatistics(context.Background(), "drv-1", t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.TotalPoints != 4 {
		t.Errorf("total points = %d, want 4", stats.TotalPoints)
	}
	// Two hops of ~1.11 km each (0.01° of latitude), rounded to one decimal.
	if math.Abs(stats.TotalDistanceKm-2.2) > 0.1 {
		t.Errorf("distance = %f, want ≈2.2", stats.TotalDistanceKm)
	}
	if stats.StatusCounts[domain.VehicleMoving] != 3 || stats.StatusCounts[domain.VehicleStopped] != 1 {
		t.Errorf("status counts = %+v", stats.StatusCounts)
	}
	if stats.DistinctOrdersServed != 2 {
		t.Errorf("distinct orders = %d, want 2", stats.DistinctOrdersServed)
	}
	if stats.TimeMovingMinutes != 30 {
		t.Errorf("moving minutes = %d, want 30", stats.TimeMovingMinutes)
	}
	if stats.AverageSpeedKmh <= 0 {
		t.Errorf("average speed = %f, want > 0", stats.AverageSpeedKmh)
	}
}

func TestDriverStatisticsEmptyRange(t *testing.T) {
	f := newTrackingFixture()
	f.drivers.drivers["drv-1"] = &ports.DriverDetails{ID: "drv-1", Availability: domain.VehicleAvailable}

	stats, err := f.svc.DriverStatistics(context.Background(), "drv-1", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalPoints != 0 || stats.TotalDistanceKm != 0 {
		t.Errorf("stats = %+v, want zeroes", stats)
	}
}
