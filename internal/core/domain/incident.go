package domain

import "time"

// IncidentType classifies a road incident reported by a driver.
type IncidentType string

const (
	IncidentAccident     IncidentType = "accident"
	IncidentRoadBlock    IncidentType = "road_block"
	IncidentHeavyTraffic IncidentType = "heavy_traffic"
	IncidentWeather      IncidentType = "weather"
	IncidentOther        IncidentType = "other"
)

// Incident defaults applied when the report omits them.
const (
	DefaultIncidentDurationHours = 24
	DefaultIncidentRadiusKm      = 5.0
)

// Incident is a time-bounded geofenced alert. Records are never deleted: the
// expiry sweep or an explicit deactivation flips Active to false, keeping the
// audit trail intact.
type Incident struct {
	ID               string       `json:"id" bson:"_id,omitempty"`
	ReporterDriverID string       `json:"reporter_driver_id" bson:"reporter_driver_id"`
	Latitude         float64      `json:"latitude" bson:"latitude"`
	Longitude        float64      `json:"longitude" bson:"longitude"`
	Type             IncidentType `json:"type" bson:"type"`
	ReportedAt       time.Time    `json:"reported_at" bson:"reported_at"`
	ExpiresAt        time.Time    `json:"expires_at" bson:"expires_at"`
	ImpactRadiusKm   float64      `json:"impact_radius_km" bson:"impact_radius_km"`
	Active           bool         `json:"active" bson:"active"`
}

// Expired reports whether the incident's lifetime has elapsed at the given time.
func (i Incident) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
