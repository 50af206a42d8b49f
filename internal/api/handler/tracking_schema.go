package handler

import (
	"time"

	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
)

type acceptedResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// --- Request types ---

type locationReportRequest struct {
	DriverID   string     `json:"driver_id"   validate:"required"`
	OrderID    string     `json:"order_id"`
	Latitude   float64    `json:"latitude"    validate:"latitude"`
	Longitude  float64    `json:"longitude"   validate:"longitude"`
	CapturedAt *time.Time `json:"captured_at"`
}

type driverActionRequest struct {
	DriverID string `json:"driver_id" validate:"required"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type reportIncidentRequest struct {
	DriverID      string  `json:"driver_id"      validate:"required"`
	Latitude      float64 `json:"latitude"       validate:"latitude"`
	Longitude     float64 `json:"longitude"      validate:"longitude"`
	Type          string  `json:"type"           validate:"required,oneof=accident road_block heavy_traffic weather other"`
	DurationHours int     `json:"duration_hours" validate:"gte=0"`
	RadiusKm      float64 `json:"radius_km"      validate:"gte=0"`
}

// --- Response types ---
// Owned by the transport layer: the JSON contract is not coupled to internal
// service changes.

type locationPointResponse struct {
	DriverID      string    `json:"driver_id"`
	OrderID       string    `json:"order_id,omitempty"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	CapturedAt    time.Time `json:"captured_at"`
	VehicleStatus string    `json:"vehicle_status"`
}

func toPointResponse(p *domain.LocationPoint) locationPointResponse {
	return locationPointResponse{
		DriverID:      p.DriverID,
		OrderID:       p.OrderID,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		CapturedAt:    p.CapturedAt,
		VehicleStatus: string(p.VehicleStatus),
	}
}

type currentLocationResponse struct {
	locationPointResponse
	DistanceToTargetKm float64 `json:"distance_to_target_km"`
	EtaMinutes         int     `json:"eta_minutes"`
}

type historyResponse struct {
	OrderID string                  `json:"order_id"`
	Points  []locationPointResponse `json:"points"`
}

type nearbyDriverResponse struct {
	DriverID    string    `json:"driver_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	DistanceKm  float64   `json:"distance_km"`
	LastUpdated time.Time `json:"last_updated"`
}

type nearbyDeliveryResponse struct {
	OrderID    string  `json:"order_id"`
	DriverID   string  `json:"driver_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distance_km"`
}

type driverStatisticsResponse struct {
	DriverID             string         `json:"driver_id"`
	From                 time.Time      `json:"from"`
	To                   time.Time      `json:"to"`
	TotalPoints          int            `json:"total_points"`
	TotalDistanceKm      float64        `json:"total_distance_km"`
	TimeMovingMinutes    int64          `json:"time_moving_minutes"`
	AverageSpeedKmh      float64        `json:"average_speed_kmh"`
	StatusCounts         map[string]int `json:"status_counts"`
	DistinctOrdersServed int            `json:"distinct_orders_served"`
	OrderIDs             []string       `json:"order_ids"`
}

func toStatisticsResponse(driverID string, from, to time.Time, s *ports.DriverStatistics) driverStatisticsResponse {
	counts := make(map[string]int, len(s.StatusCounts))
	for status, n := range s.StatusCounts {
		counts[string(status)] = n
	}
	return driverStatisticsResponse{
		DriverID:             driverID,
		From:                 from,
		To:                   to,
		TotalPoints:          s.TotalPoints,
		TotalDistanceKm:      s.TotalDistanceKm,
		TimeMovingMinutes:    s.TimeMovingMinutes,
		AverageSpeedKmh:      s.AverageSpeedKmh,
		StatusCounts:         counts,
		DistinctOrdersServed: s.DistinctOrdersServed,
		OrderIDs:             s.OrderIDs,
	}
}

type incidentResponse struct {
	ID               string    `json:"id"`
	ReporterDriverID string    `json:"reporter_driver_id"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Type             string    `json:"type"`
	ReportedAt       time.Time `json:"reported_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	ImpactRadiusKm   float64   `json:"impact_radius_km"`
	Active           bool      `json:"active"`
}

func toIncidentResponse(inc *domain.Incident) incidentResponse {
	return incidentResponse{
		ID:               inc.ID,
		ReporterDriverID: inc.ReporterDriverID,
		Latitude:         inc.Latitude,
		Longitude:        inc.Longitude,
		Type:             string(inc.Type),
		ReportedAt:       inc.ReportedAt,
		ExpiresAt:        inc.ExpiresAt,
		ImpactRadiusKm:   inc.ImpactRadiusKm,
		Active:           inc.Active,
	}
}
