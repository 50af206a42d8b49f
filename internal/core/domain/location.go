package domain

import "time"

// VehicleStatus represents the derived motion state of a driver's vehicle.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehicleStopped   VehicleStatus = "stopped"
	VehicleMoving    VehicleStatus = "moving"
)

// Coordinates represents a geographic point.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// LocationPoint is a single immutable location report. Points are append-only
// per driver and, when the driver is serving an order, per order.
type LocationPoint struct {
	ID            string        `json:"id" bson:"_id,omitempty"`
	DriverID      string        `json:"driver_id" bson:"driver_id"`
	OrderID       string        `json:"order_id,omitempty" bson:"order_id,omitempty"` // empty while the driver is idle
	Latitude      float64       `json:"latitude" bson:"latitude"`
	Longitude     float64       `json:"longitude" bson:"longitude"`
	CapturedAt    time.Time     `json:"captured_at" bson:"captured_at"`
	VehicleStatus VehicleStatus `json:"vehicle_status" bson:"vehicle_status"`
}
