package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
	"github.com/roadsync/tracking-system/pkg/geo"
)

const (
	// confirmationRadiusKm is how close a driver must be to the pickup or
	// delivery point to confirm it.
	confirmationRadiusKm = 1.0

	// pickupSpeedKmPerMin is the assumed urban speed while heading to the
	// pickup point (30 km/h).
	pickupSpeedKmPerMin = 0.5

	// arrivedThresholdKm below this remaining distance the ETA is zero.
	arrivedThresholdKm = 0.1
)

type trackingService struct {
	locations ports.LocationRepository
	orders    ports.OrderDirectory
	drivers   ports.DriverDirectory
	bus       ports.EventBus
	index     ports.ProximityIndex
	notifier  ports.LocationNotifier
	cache     ports.LatestLocationCache // optional
	log       zerolog.Logger
}

// NewTrackingService returns a TrackingService implementation. The cache may
// be nil when no shared latest-location cache is configured.
func NewTrackingService(
	locations ports.LocationRepository,
	orders ports.OrderDirectory,
	drivers ports.DriverDirectory,
	bus ports.EventBus,
	index ports.ProximityIndex,
	notifier ports.LocationNotifier,
	cache ports.LatestLocationCache,
	log zerolog.Logger,
) ports.TrackingService {
	return &trackingService{
		locations: locations,
		orders:    orders,
		drivers:   drivers,
		bus:       bus,
		index:     index,
		notifier:  notifier,
		cache:     cache,
		log:       log,
	}
}

// --- Event payloads ---

type statusChangedEvent struct {
	OrderID   string             `json:"order_id"`
	DriverID  string             `json:"driver_id,omitempty"`
	NewStatus domain.OrderStatus `json:"new_status"`
	At        time.Time          `json:"at"`
}

type orderCancelledEvent struct {
	OrderID string    `json:"order_id"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

type driverStatusEvent struct {
	DriverID string               `json:"driver_id"`
	Status   domain.VehicleStatus `json:"status"`
	At       time.Time            `json:"at"`
}

// publish hands an event to the bus, log-and-drop on failure. The bus bounds
// the attempt; a broken broker must never fail the business operation.
func (s *trackingService) publish(ctx context.Context, topic string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("event publish failed, dropping")
	}
}

// IngestLocation records a location report. Ordering per driver is the
// caller's concern (the ingest dispatcher shards by driver id); within one
// call the previous point is whatever the store currently holds as latest.
func (s *trackingService) IngestLocation(ctx context.Context, in ports.LocationReportInput) (*domain.LocationPoint, error) {
	capturedAt := in.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	prev, err := s.locations.LatestByDriver(ctx, in.DriverID)
	if err != nil && !errors.Is(err, domain.ErrLocationNotFound) {
		return nil, fmt.Errorf("ingest: load previous point: %w", err)
	}

	var orderStatus domain.OrderStatus
	if in.OrderID != "" {
		order, err := s.orders.GetOrder(ctx, in.OrderID)
		if err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		orderStatus = order.Status
	}

	point := &domain.LocationPoint{
		DriverID:   in.DriverID,
		OrderID:    in.OrderID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		CapturedAt: capturedAt,
	}
	point.VehicleStatus = DeriveVehicleStatus(prev, point, orderStatus)

	if err := s.locations.Insert(ctx, point); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	// A report older than the current latest is kept for the audit trail but
	// must not regress the latest view, the index, the cache, or observers.
	// Equal timestamps count as newer: arrival order breaks the tie.
	if prev != nil && point.CapturedAt.Before(prev.CapturedAt) {
		s.log.Debug().
			Str("driver_id", point.DriverID).
			Time("captured_at", point.CapturedAt).
			Time("latest_at", prev.CapturedAt).
			Msg("stale location report, latest view unchanged")
		return point, nil
	}

	s.index.Upsert(point)

	if s.cache != nil {
		if err := s.cache.Store(ctx, point); err != nil {
			s.log.Warn().Err(err).Str("driver_id", point.DriverID).Msg("latest-location cache write failed")
		}
	}

	s.notifier.Notify(point)
	s.publish(ctx, ports.TopicDriverStatusChanged, driverStatusEvent{
		DriverID: point.DriverID,
		Status:   point.VehicleStatus,
		At:       point.CapturedAt,
	})

	return point, nil
}

// CurrentLocation returns the order's latest point plus the remaining
// distance and ETA. Both are re-derived from the order's original route
// estimate rather than the actual remaining path; once a driver goes
// off-route the numbers diverge. Known trade-off, kept intentionally.
func (s *trackingService) CurrentLocation(ctx context.Context, orderID string) (*ports.CurrentLocation, error) {
	point, err := s.locations.LatestByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("current location: %w", err)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("current location: %w", err)
	}

	distance, eta := remainingEstimate(point, order)
	return &ports.CurrentLocation{
		Point:              point,
		DistanceToTargetKm: distance,
		EtaMinutes:         eta,
	}, nil
}

// remainingEstimate computes distance to the current target (origin while
// awaiting pickup, destination afterwards) and an ETA from the order's
// original velocity estimate.
func remainingEstimate(point *domain.LocationPoint, order *ports.OrderDetails) (float64, int) {
	var targetLat, targetLon float64
	if order.Status == domain.OrderAwaitingPickup {
		targetLat, targetLon = order.OriginLat, order.OriginLon
	} else {
		targetLat, targetLon = order.DestLat, order.DestLon
	}

	distance := geo.DistanceKm(point.Latitude, point.Longitude, targetLat, targetLon)
	if distance <= arrivedThresholdKm {
		return distance, 0
	}

	if order.Status == domain.OrderAwaitingPickup {
		return distance, int(math.Ceil(distance / pickupSpeedKmPerMin))
	}

	if order.EstimatedMinutes <= 0 || order.EstimatedDistanceKm <= 0 {
		return distance, 0
	}
	velocity := order.EstimatedDistanceKm / float64(order.EstimatedMinutes)
	return distance, int(math.Ceil(distance / velocity))
}

func (s *trackingService) OrderHistory(ctx context.Context, orderID string) ([]*domain.LocationPoint, error) {
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, fmt.Errorf("order history: %w", err)
	}
	points, err := s.locations.HistoryByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order history: %w", err)
	}
	return points, nil
}

func (s *trackingService) NearestDrivers(_ context.Context, lat, lon, radiusKm float64) ([]ports.NearbyDriver, error) {
	return s.index.NearestAvailableDrivers(lat, lon, radiusKm), nil
}

func (s *trackingService) NearbyDeliveries(_ context.Context, lat, lon, radiusKm float64) ([]ports.NearbyDelivery, error) {
	return s.index.NearbyOrders(lat, lon, radiusKm), nil
}

// AcceptOrder applies the driver-acceptance transition. The driver must exist
// and be available; the assignment is recorded before the status change so a
// crash between the two re-runs safely (assigning twice is idempotent).
func (s *trackingService) AcceptOrder(ctx context.Context, orderID, driverID string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("accept order: %w", err)
	}
	if !order.Status.CanTransitionTo(domain.OrderAwaitingPickup) {
		return fmt.Errorf("accept order: %w (from %s to %s)", domain.ErrInvalidTransition, order.Status, domain.OrderAwaitingPickup)
	}

	driver, err := s.drivers.GetDriver(ctx, driverID)
	if err != nil {
		return fmt.Errorf("accept order: %w", err)
	}
	if driver.Availability != domain.VehicleAvailable {
		return fmt.Errorf("accept order: %w: driver %s is not available", domain.ErrPreconditionNotMet, driverID)
	}

	if err := s.orders.AssignDriver(ctx, orderID, driverID); err != nil {
		return fmt.Errorf("accept order: %w", err)
	}
	if err := s.orders.SetStatus(ctx, orderID, domain.OrderAwaitingPickup); err != nil {
		return fmt.Errorf("accept order: %w", err)
	}

	s.publish(ctx, ports.TopicStatusChanged, statusChangedEvent{
		OrderID:   orderID,
		DriverID:  driverID,
		NewStatus: domain.OrderAwaitingPickup,
		At:        time.Now().UTC(),
	})
	s.log.Info().Str("order_id", orderID).Str("driver_id", driverID).Msg("order accepted")
	return nil
}

func (s *trackingService) ConfirmPickup(ctx context.Context, orderID, driverID string) error {
	return s.confirm(ctx, orderID, driverID, confirmation{
		fromStatus:   domain.OrderAwaitingPickup,
		toStatus:     domain.OrderInTransit,
		driverStatus: domain.VehicleMoving,
		target:       targetOrigin,
		what:         "confirm pickup",
	})
}

func (s *trackingService) ConfirmDelivery(ctx context.Context, orderID, driverID string) error {
	return s.confirm(ctx, orderID, driverID, confirmation{
		fromStatus:   domain.OrderInTransit,
		toStatus:     domain.OrderDelivered,
		driverStatus: domain.VehicleAvailable,
		target:       targetDestination,
		what:         "confirm delivery",
	})
}

type confirmationTarget int

const (
	targetOrigin confirmationTarget = iota
	targetDestination
)

type confirmation struct {
	fromStatus   domain.OrderStatus
	toStatus     domain.OrderStatus
	driverStatus domain.VehicleStatus
	target       confirmationTarget
	what         string
}

// confirm runs the shared pickup/delivery confirmation flow: state check,
// actor check, 1 km proximity check, then the status change and events.
func (s *trackingService) confirm(ctx context.Context, orderID, driverID string, c confirmation) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("%s: %w", c.what, err)
	}
	if order.Status != c.fromStatus {
		return fmt.Errorf("%s: %w (from %s to %s)", c.what, domain.ErrInvalidTransition, order.Status, c.toStatus)
	}
	if order.DriverID == "" || order.DriverID != driverID {
		return fmt.Errorf("%s: %w: driver %s is not assigned to order %s", c.what, domain.ErrPreconditionNotMet, driverID, orderID)
	}

	latest, err := s.locations.LatestByDriver(ctx, driverID)
	if err != nil {
		return fmt.Errorf("%s: %w", c.what, err)
	}

	targetLat, targetLon := order.OriginLat, order.OriginLon
	if c.target == targetDestination {
		targetLat, targetLon = order.DestLat, order.DestLon
	}
	distance := geo.DistanceKm(latest.Latitude, latest.Longitude, targetLat, targetLon)
	if distance > confirmationRadiusKm {
		return fmt.Errorf("%s: %w: driver is %.2f km from the target, must be within %.1f km",
			c.what, domain.ErrPreconditionNotMet, distance, confirmationRadiusKm)
	}

	if err := s.orders.SetStatus(ctx, orderID, c.toStatus); err != nil {
		return fmt.Errorf("%s: %w", c.what, err)
	}

	now := time.Now().UTC()
	s.publish(ctx, ports.TopicStatusChanged, statusChangedEvent{
		OrderID:   orderID,
		DriverID:  driverID,
		NewStatus: c.toStatus,
		At:        now,
	})
	s.publish(ctx, ports.TopicDriverStatusChanged, driverStatusEvent{
		DriverID: driverID,
		Status:   c.driverStatus,
		At:       now,
	})

	s.log.Info().
		Str("order_id", orderID).
		Str("driver_id", driverID).
		Str("new_status", string(c.toStatus)).
		Msg(c.what)
	return nil
}

// CancelOrder cancels from any non-terminal state. Cancelling an already
// cancelled order is a no-op; cancelling a delivered one is invalid.
func (s *trackingService) CancelOrder(ctx context.Context, orderID, reason string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if order.Status == domain.OrderCancelled {
		return nil
	}
	if !order.Status.CanTransitionTo(domain.OrderCancelled) {
		return fmt.Errorf("cancel order: %w (from %s to %s)", domain.ErrInvalidTransition, order.Status, domain.OrderCancelled)
	}

	if err := s.orders.SetStatus(ctx, orderID, domain.OrderCancelled); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	s.publish(ctx, ports.TopicOrderCancelled, orderCancelledEvent{
		OrderID: orderID,
		Reason:  reason,
		At:      time.Now().UTC(),
	})
	s.log.Info().Str("order_id", orderID).Str("reason", reason).Msg("order cancelled")
	return nil
}

// SweepStaleOrders cancels orders stuck in processing past the timeout. Each
// order is cancelled individually so a partial failure leaves the rest of the
// batch for the next tick.
func (s *trackingService) SweepStaleOrders(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	stale, err := s.orders.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("stale order sweep: %w", err)
	}

	cancelled := 0
	for _, order := range stale {
		if err := s.CancelOrder(ctx, order.ID, "no available driver"); err != nil {
			s.log.Error().Err(err).Str("order_id", order.ID).Msg("stale order cancellation failed")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// DriverStatistics aggregates a driver's points over [from, to].
func (s *trackingService) DriverStatistics(ctx context.Context, driverID string, from, to time.Time) (*ports.DriverStatistics, error) {
	if _, err := s.drivers.GetDriver(ctx, driverID); err != nil {
		return nil, fmt.Errorf("driver statistics: %w", err)
	}

	points, err := s.locations.HistoryByDriver(ctx, driverID, from, to)
	if err != nil {
		return nil, fmt.Errorf("driver statistics: %w", err)
	}

	stats := &ports.DriverStatistics{
		TotalPoints:  len(points),
		StatusCounts: make(map[domain.VehicleStatus]int),
	}
	if len(points) == 0 {
		return stats, nil
	}

	orders := make(map[string]struct{})
	var lastMoving *domain.LocationPoint
	for i, p := range points {
		stats.StatusCounts[p.VehicleStatus]++
		if p.OrderID != "" {
			orders[p.OrderID] = struct{}{}
		}
		if i > 0 {
			prev := points[i-1]
			stats.TotalDistanceKm += geo.DistanceKm(prev.Latitude, prev.Longitude, p.Latitude, p.Longitude)
		}
		if p.VehicleStatus == domain.VehicleMoving {
			if lastMoving != nil {
				stats.TimeMovingMinutes += int64(p.CapturedAt.Sub(lastMoving.CapturedAt).Minutes())
			}
			lastMoving = p
		}
	}

	if stats.TimeMovingMinutes > 0 {
		stats.AverageSpeedKmh = math.Round(stats.TotalDistanceKm/float64(stats.TimeMovingMinutes)*60*10) / 10
	}
	stats.TotalDistanceKm = math.Round(stats.TotalDistanceKm*10) / 10
	stats.DistinctOrdersServed = len(orders)
	stats.OrderIDs = make([]string, 0, len(orders))
	for id := range orders {
		stats.OrderIDs = append(stats.OrderIDs, id)
	}
	return stats, nil
}
