package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roadsync/tracking-system/internal/api/metrics"
	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
)

// IncidentHandler handles incident reporting and queries.
type IncidentHandler struct {
	service ports.IncidentService
}

func NewIncidentHandler(service ports.IncidentService) *IncidentHandler {
	return &IncidentHandler{service: service}
}

// Report handles POST /v1/incidents.
func (h *IncidentHandler) Report(c echo.Context) error {
	var req reportIncidentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	incident, err := h.service.Report(c.Request().Context(), ports.ReportIncidentInput{
		DriverID:      req.DriverID,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Type:          domain.IncidentType(req.Type),
		DurationHours: req.DurationHours,
		RadiusKm:      req.RadiusKm,
	})
	if err != nil {
		return err
	}

	metrics.IncidentsReportedTotal.WithLabelValues(string(incident.Type)).Inc()
	return c.JSON(http.StatusCreated, toIncidentResponse(incident))
}

// List handles GET /v1/incidents — all active, non-expired incidents. With
// lat/lon query parameters the result narrows to incidents within radius_km.
func (h *IncidentHandler) List(c echo.Context) error {
	var (
		incidents []*domain.Incident
		err       error
	)
	if c.QueryParam("lat") != "" || c.QueryParam("lon") != "" {
		var lat, lon, radius float64
		lat, lon, radius, err = searchParams(c)
		if err != nil {
			return err
		}
		incidents, err = h.service.Nearby(c.Request().Context(), lat, lon, radius)
	} else {
		incidents, err = h.service.ListActive(c.Request().Context())
	}
	if err != nil {
		return err
	}

	resp := make([]incidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		resp = append(resp, toIncidentResponse(inc))
	}
	return c.JSON(http.StatusOK, resp)
}

// Get handles GET /v1/incidents/:incident_id.
func (h *IncidentHandler) Get(c echo.Context) error {
	incident, err := h.service.GetByID(c.Request().Context(), c.Param("incident_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toIncidentResponse(incident))
}

// Deactivate handles DELETE /v1/incidents/:incident_id.
func (h *IncidentHandler) Deactivate(c echo.Context) error {
	if err := h.service.Deactivate(c.Request().Context(), c.Param("incident_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
