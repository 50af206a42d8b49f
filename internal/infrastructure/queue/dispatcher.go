package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/api/metrics"
	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Dispatcher routes location reports to a fixed set of workers using
// consistent hashing on the driver id. Reports from one driver always land on
// the same worker, so the status derivation sees them in order; different
// drivers process in parallel.
type Dispatcher struct {
	workers []chan ports.LocationReportInput
	service ports.TrackingService
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.TrackingService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.LocationReportInput, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.LocationReportInput, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends a report to the worker responsible for its driver.
// The call is non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Enqueue(report ports.LocationReportInput) {
	idx := d.shardIndex(report.DriverID)
	d.workers[idx] <- report
	metrics.IngestQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

// EnqueueBatch enqueues multiple reports preserving per-driver ordering.
func (d *Dispatcher) EnqueueBatch(reports []ports.LocationReportInput) {
	for _, r := range reports {
		d.Enqueue(r)
	}
}

// reasonLabel collapses an ingest error to a low-cardinality metric label.
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "storage"
	}
}

// shardIndex maps a driver id deterministically to a worker index.
func (d *Dispatcher) shardIndex(driverID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(driverID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.LocationReportInput) {
	workerID := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-ch:
			if !ok {
				return
			}
			metrics.IngestQueueDepth.WithLabelValues(workerID).Set(float64(len(ch)))

			start := time.Now()
			point, err := d.service.IngestLocation(ctx, report)
			if err != nil {
				metrics.IngestProcessingDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
				metrics.IngestErrorsTotal.WithLabelValues(reasonLabel(err)).Inc()
				d.log.Error().Err(err).
					Str("driver_id", report.DriverID).
					Int("worker_id", id).
					Msg("location report processing failed")
				continue
			}
			metrics.IngestProcessingDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
			metrics.LocationsIngestedTotal.WithLabelValues(string(point.VehicleStatus)).Inc()
		}
	}
}
