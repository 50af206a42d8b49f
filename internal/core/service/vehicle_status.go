package service

import (
	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/pkg/geo"
)

const (
	// stoppedMaxDistanceKm and stoppedMinElapsedSeconds define "stopped":
	// less than 10 m of movement over more than two minutes.
	stoppedMaxDistanceKm     = 0.01
	stoppedMinElapsedSeconds = 120
)

// DeriveVehicleStatus computes the vehicle status for a new point given the
// driver's previous point and the associated order's status. Pure function,
// no I/O.
//
// No order, or a finished one, means the driver is available. With an active
// order the driver is stopped only when the vehicle barely moved over a long
// enough window; a first report is treated as moving, not stopped by default.
func DeriveVehicleStatus(prev *domain.LocationPoint, current *domain.LocationPoint, orderStatus domain.OrderStatus) domain.VehicleStatus {
	if current.OrderID == "" || orderStatus == domain.OrderDelivered || orderStatus == domain.OrderCancelled {
		return domain.VehicleAvailable
	}

	if prev == nil {
		return domain.VehicleMoving
	}

	distanceKm := geo.DistanceKm(prev.Latitude, prev.Longitude, current.Latitude, current.Longitude)
	elapsed := current.CapturedAt.Sub(prev.CapturedAt).Seconds()

	if distanceKm < stoppedMaxDistanceKm && elapsed > stoppedMinElapsedSeconds {
		return domain.VehicleStopped
	}
	return domain.VehicleMoving
}
