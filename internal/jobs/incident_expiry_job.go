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

// IncidentExpiryJob periodically deactivates incidents whose lifetime has
// elapsed. The sweep is a single bulk update, so running it again immediately
// finds nothing to do.
type IncidentExpiryJob struct {
	service  ports.IncidentService
	interval time.Duration
	cron     *cron.Cron
	log      zerolog.Logger
}

func NewIncidentExpiryJob(service ports.IncidentService, interval time.Duration, log zerolog.Logger) *IncidentExpiryJob {
	return &IncidentExpiryJob{
		service:  service,
		interval: interval,
		cron:     cron.New(),
		log:      log.With().Str("component", "incident_expiry_job").Logger(),
	}
}

func (j *IncidentExpiryJob) Start() error {
	_, err := j.cron.AddFunc(fmt.Sprintf("@every %s", j.interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		count, err := j.service.ExpireSweep(ctx)
		if err != nil {
			j.log.Error().Err(err).Msg("incident expiry sweep failed")
			return
		}
		if count > 0 {
			metrics.IncidentsExpiredTotal.Add(float64(count))
			j.log.Info().Int64("deactivated", count).Msg("expired incidents deactivated")
		}
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.log.Info().Dur("interval", j.interval).Msg("incident expiry job started")
	return nil
}

func (j *IncidentExpiryJob) Stop() {
	j.cron.Stop()
	j.log.Info().Msg("incident expiry job stopped")
}
