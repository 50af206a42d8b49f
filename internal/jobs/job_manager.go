package jobs

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/core/ports"
)

// Config carries the sweep cadence settings.
type Config struct {
	OrderTimeoutInterval   time.Duration
	OrderStaleAfter        time.Duration
	IncidentExpiryInterval time.Duration
}

// JobManager coordinates the scheduled background jobs.
type JobManager struct {
	orderTimeout   *OrderTimeoutJob
	incidentExpiry *IncidentExpiryJob
}

func NewJobManager(tracking ports.TrackingService, incidents ports.IncidentService, cfg Config, log zerolog.Logger) *JobManager {
	return &JobManager{
		orderTimeout:   NewOrderTimeoutJob(tracking, cfg.OrderTimeoutInterval, cfg.OrderStaleAfter, log),
		incidentExpiry: NewIncidentExpiryJob(incidents, cfg.IncidentExpiryInterval, log),
	}
}

// StartAll starts every job, stopping already started ones on failure.
func (jm *JobManager) StartAll() error {
	if err := jm.orderTimeout.Start(); err != nil {
		return fmt.Errorf("start order timeout job: %w", err)
	}
	if err := jm.incidentExpiry.Start(); err != nil {
		jm.orderTimeout.Stop()
		return fmt.Errorf("start incident expiry job: %w", err)
	}
	return nil
}

// StopAll stops all jobs.
func (jm *JobManager) StopAll() {
	jm.incidentExpiry.Stop()
	jm.orderTimeout.Stop()
}
