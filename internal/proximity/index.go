// Package proximity maintains an in-memory spatial index over the latest
// location point of every driver and order. Candidate lookup goes through an
// R-tree; exact distances and ordering are always recomputed with Haversine,
// so results match an exhaustive scan of the latest-point snapshot.
package proximity

import (
	"math"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
	"github.com/roadsync/tracking-system/pkg/geo"
)

// kmPerDegreeLat is the approximate span of one degree of latitude. Used only
// to size the R-tree search window; never for reported distances.
const kmPerDegreeLat = 111.32

type entry struct {
	point *domain.LocationPoint
}

var _ rtreego.Spatial = (*entry)(nil)

func (e *entry) Bounds() rtreego.Rect {
	return rtreego.Point{e.point.Latitude, e.point.Longitude}.ToRect(1e-6)
}

// Index implements ports.ProximityIndex. One entry per driver and one per
// order; Upsert replaces the previous entry so every query sees exactly the
// latest point of each entity.
type Index struct {
	mu       sync.RWMutex
	drivers  *rtreego.Rtree
	orders   *rtreego.Rtree
	byDriver map[string]*entry
	byOrder  map[string]*entry
}

func NewIndex() *Index {
	return &Index{
		drivers:  rtreego.NewTree(2, 25, 50),
		orders:   rtreego.NewTree(2, 25, 50),
		byDriver: make(map[string]*entry),
		byOrder:  make(map[string]*entry),
	}
}

// Upsert replaces the driver's (and, when the point carries an order, the
// order's) indexed position with p.
func (idx *Index) Upsert(p *domain.LocationPoint) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.byDriver[p.DriverID]; ok {
		idx.drivers.Delete(old)
	}
	e := &entry{point: p}
	idx.byDriver[p.DriverID] = e
	idx.drivers.Insert(e)

	if p.OrderID == "" {
		return
	}
	if old, ok := idx.byOrder[p.OrderID]; ok {
		idx.orders.Delete(old)
	}
	oe := &entry{point: p}
	idx.byOrder[p.OrderID] = oe
	idx.orders.Insert(oe)
}

// NearestAvailableDrivers returns available drivers within radiusKm, closest
// first. An empty result is valid.
func (idx *Index) NearestAvailableDrivers(lat, lon, radiusKm float64) []ports.NearbyDriver {
	idx.mu.RLock()
	candidates := searchWindow(idx.drivers, lat, lon, radiusKm)
	idx.mu.RUnlock()

	results := make([]ports.NearbyDriver, 0, len(candidates))
	for _, c := range candidates {
		p := c.(*entry).point
		if p.VehicleStatus != domain.VehicleAvailable {
			continue
		}
		d := geo.DistanceKm(lat, lon, p.Latitude, p.Longitude)
		if d > radiusKm {
			continue
		}
		results = append(results, ports.NearbyDriver{
			DriverID:    p.DriverID,
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			DistanceKm:  d,
			LastUpdated: p.CapturedAt,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DistanceKm < results[j].DistanceKm })
	return results
}

// NearbyOrders returns the latest point of each order within radiusKm,
// regardless of vehicle status, closest first.
func (idx *Index) NearbyOrders(lat, lon, radiusKm float64) []ports.NearbyDelivery {
	idx.mu.RLock()
	candidates := searchWindow(idx.orders, lat, lon, radiusKm)
	idx.mu.RUnlock()

	results := make([]ports.NearbyDelivery, 0, len(candidates))
	for _, c := range candidates {
		p := c.(*entry).point
		d := geo.DistanceKm(lat, lon, p.Latitude, p.Longitude)
		if d > radiusKm {
			continue
		}
		results = append(results, ports.NearbyDelivery{
			OrderID:    p.OrderID,
			DriverID:   p.DriverID,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			DistanceKm: d,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DistanceKm < results[j].DistanceKm })
	return results
}

// searchWindow queries the tree with a bounding rectangle that fully contains
// the radius. The window over-selects near the poles; the exact Haversine
// filter above discards the extras.
func searchWindow(tree *rtreego.Rtree, lat, lon, radiusKm float64) []rtreego.Spatial {
	latPad := radiusKm / kmPerDegreeLat
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lonPad := latPad / cosLat

	rect, err := rtreego.NewRect(rtreego.Point{lat - latPad, lon - lonPad}, []float64{2 * latPad, 2 * lonPad})
	if err != nil {
		return nil
	}
	return tree.SearchIntersect(rect)
}
