package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roadsync/tracking-system/internal/api/metrics"
	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
)

const defaultSearchRadiusKm = 5.0

// ReportDispatcher is the interface the handler uses to enqueue location
// reports for sharded background processing.
type ReportDispatcher interface {
	Enqueue(report ports.LocationReportInput)
	EnqueueBatch(reports []ports.LocationReportInput)
}

// TrackingHandler handles location ingest, live views, proximity queries, and
// the order lifecycle endpoints.
type TrackingHandler struct {
	service    ports.TrackingService
	dispatcher ReportDispatcher
}

func NewTrackingHandler(service ports.TrackingService, dispatcher ReportDispatcher) *TrackingHandler {
	return &TrackingHandler{service: service, dispatcher: dispatcher}
}

// Report handles POST /v1/locations — enqueues a single report, returns 202.
func (h *TrackingHandler) Report(c echo.Context) error {
	var req locationReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	h.dispatcher.Enqueue(toReportInput(req))
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "location report accepted"})
}

// ReportBatch handles POST /v1/locations/batch — enqueues a batch preserving
// per-driver ordering, returns 202.
func (h *TrackingHandler) ReportBatch(c echo.Context) error {
	var reqs []locationReportRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(reqs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch cannot be empty")
	}

	inputs := make([]ports.LocationReportInput, 0, len(reqs))
	for i, req := range reqs {
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity,
				fmt.Sprintf("report[%d]: %s", i, err.Error()))
		}
		inputs = append(inputs, toReportInput(req))
	}

	h.dispatcher.EnqueueBatch(inputs)
	return c.JSON(http.StatusAccepted, acceptedResponse{
		Message: "location reports accepted",
		Count:   len(inputs),
	})
}

func toReportInput(r locationReportRequest) ports.LocationReportInput {
	in := ports.LocationReportInput{
		DriverID:  r.DriverID,
		OrderID:   r.OrderID,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
	if r.CapturedAt != nil {
		in.CapturedAt = r.CapturedAt.UTC()
	}
	return in
}

// Current handles GET /v1/orders/:order_id/location.
func (h *TrackingHandler) Current(c echo.Context) error {
	current, err := h.service.CurrentLocation(c.Request().Context(), c.Param("order_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, currentLocationResponse{
		locationPointResponse: toPointResponse(current.Point),
		DistanceToTargetKm:    current.DistanceToTargetKm,
		EtaMinutes:            current.EtaMinutes,
	})
}

// History handles GET /v1/orders/:order_id/history — full trail, most recent
// first.
func (h *TrackingHandler) History(c echo.Context) error {
	orderID := c.Param("order_id")
	points, err := h.service.OrderHistory(c.Request().Context(), orderID)
	if err != nil {
		return err
	}

	resp := historyResponse{OrderID: orderID, Points: make([]locationPointResponse, 0, len(points))}
	for _, p := range points {
		resp.Points = append(resp.Points, toPointResponse(p))
	}
	return c.JSON(http.StatusOK, resp)
}

// NearestDrivers handles GET /v1/drivers/nearest?lat=..&lon=..&radius_km=..
func (h *TrackingHandler) NearestDrivers(c echo.Context) error {
	lat, lon, radius, err := searchParams(c)
	if err != nil {
		return err
	}

	drivers, err := h.service.NearestDrivers(c.Request().Context(), lat, lon, radius)
	if err != nil {
		return err
	}

	resp := make([]nearbyDriverResponse, 0, len(drivers))
	for _, d := range drivers {
		resp = append(resp, nearbyDriverResponse{
			DriverID:    d.DriverID,
			Latitude:    d.Latitude,
			Longitude:   d.Longitude,
			DistanceKm:  d.DistanceKm,
			LastUpdated: d.LastUpdated,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// NearbyDeliveries handles GET /v1/deliveries/nearby?lat=..&lon=..&radius_km=..
func (h *TrackingHandler) NearbyDeliveries(c echo.Context) error {
	lat, lon, radius, err := searchParams(c)
	if err != nil {
		return err
	}

	deliveries, err := h.service.NearbyDeliveries(c.Request().Context(), lat, lon, radius)
	if err != nil {
		return err
	}

	resp := make([]nearbyDeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		resp = append(resp, nearbyDeliveryResponse{
			OrderID:    d.OrderID,
			DriverID:   d.DriverID,
			Latitude:   d.Latitude,
			Longitude:  d.Longitude,
			DistanceKm: d.DistanceKm,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// Accept handles POST /v1/orders/:order_id/accept.
func (h *TrackingHandler) Accept(c echo.Context) error {
	orderID := c.Param("order_id")
	var req driverActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.service.AcceptOrder(c.Request().Context(), orderID, req.DriverID); err != nil {
		return err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(domain.OrderAwaitingPickup)).Inc()
	return c.JSON(http.StatusOK, map[string]string{"order_id": orderID, "status": string(domain.OrderAwaitingPickup)})
}

// Pickup handles POST /v1/orders/:order_id/pickup.
func (h *TrackingHandler) Pickup(c echo.Context) error {
	orderID := c.Param("order_id")
	var req driverActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.service.ConfirmPickup(c.Request().Context(), orderID, req.DriverID); err != nil {
		return err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(domain.OrderInTransit)).Inc()
	return c.JSON(http.StatusOK, map[string]string{"order_id": orderID, "status": string(domain.OrderInTransit)})
}

// Delivery handles POST /v1/orders/:order_id/delivery.
func (h *TrackingHandler) Delivery(c echo.Context) error {
	orderID := c.Param("order_id")
	var req driverActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.service.ConfirmDelivery(c.Request().Context(), orderID, req.DriverID); err != nil {
		return err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(domain.OrderDelivered)).Inc()
	return c.JSON(http.StatusOK, map[string]string{"order_id": orderID, "status": string(domain.OrderDelivered)})
}

// Cancel handles POST /v1/orders/:order_id/cancel.
func (h *TrackingHandler) Cancel(c echo.Context) error {
	orderID := c.Param("order_id")
	var req cancelOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.service.CancelOrder(c.Request().Context(), orderID, req.Reason); err != nil {
		return err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(domain.OrderCancelled)).Inc()
	return c.JSON(http.StatusOK, map[string]string{"order_id": orderID, "status": string(domain.OrderCancelled)})
}

// Statistics handles GET /v1/drivers/:driver_id/statistics?from=..&to=..
// Dates are RFC3339; the range defaults to the last 24 hours.
func (h *TrackingHandler) Statistics(c echo.Context) error {
	driverID := c.Param("driver_id")

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
		}
		from = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be RFC3339")
		}
		to = t
	}
	if !from.Before(to) {
		return echo.NewHTTPError(http.StatusBadRequest, "from must precede to")
	}

	stats, err := h.service.DriverStatistics(c.Request().Context(), driverID, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toStatisticsResponse(driverID, from, to, stats))
}

// searchParams parses the shared lat/lon/radius query parameters.
func searchParams(c echo.Context) (lat, lon, radius float64, err error) {
	lat, err = strconv.ParseFloat(c.QueryParam("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, 0, echo.NewHTTPError(http.StatusBadRequest, "lat must be a number in [-90, 90]")
	}
	lon, err = strconv.ParseFloat(c.QueryParam("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, 0, echo.NewHTTPError(http.StatusBadRequest, "lon must be a number in [-180, 180]")
	}

	radius = defaultSearchRadiusKm
	if raw := c.QueryParam("radius_km"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			return 0, 0, 0, echo.NewHTTPError(http.StatusBadRequest, "radius_km must be a positive number")
		}
	}
	return lat, lon, radius, nil
}
