// Package jobs provides the scheduled background sweeps: cancelling orders
// that never found a driver and deactivating expired incidents. Jobs are
// cron-based (github.com/robfig/cron/v3) and coordinated by JobManager.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/api/metrics"
	"github.com/roadsync/tracking-system/internal/core/ports"
)

// OrderTimeoutJob periodically cancels orders stuck in processing longer than
// the configured staleness threshold. Re-running over the same order is safe:
// cancelling a cancelled order is a no-op.
type OrderTimeoutJob struct {
	service    ports.TrackingService
	staleAfter time.Duration
	interval   time.Duration
	cron       *cron.Cron
	log        zerolog.Logger
}

func NewOrderTimeoutJob(service ports.TrackingService, interval, staleAfter time.Duration, log zerolog.Logger) *OrderTimeoutJob {
	return &OrderTimeoutJob{
		service:    service,
		staleAfter: staleAfter,
		interval:   interval,
		cron:       cron.New(),
		log:        log.With().Str("component", "order_timeout_job").Logger(),
	}
}

func (j *OrderTimeoutJob) Start() error {
	_, err := j.cron.AddFunc(fmt.Sprintf("@every %s", j.interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.interval)
		defer cancel()

		count, err := j.service.SweepStaleOrders(ctx, j.staleAfter)
		if err != nil {
			j.log.Error().Err(err).Msg("stale order sweep failed")
			return
		}
		if count > 0 {
			metrics.StaleOrdersCancelledTotal.Add(float64(count))
			j.log.Info().Int("cancelled", count).Msg("stale orders cancelled")
		}
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.log.Info().Dur("interval", j.interval).Dur("stale_after", j.staleAfter).Msg("order timeout job started")
	return nil
}

func (j *OrderTimeoutJob) Stop() {
	j.cron.Stop()
	j.log.Info().Msg("order timeout job stopped")
}
