package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlertDedup suppresses repeated incident alerts to the same driver across
// service instances. Key format: incident-alert:<incident_id>:<driver_id>
type AlertDedup struct {
	client *redis.Client
}

func NewAlertDedup(client *redis.Client) *AlertDedup {
	return &AlertDedup{client: client}
}

// SeenAlert reports whether this driver was already alerted for the incident.
func (d *AlertDedup) SeenAlert(ctx context.Context, incidentID, driverID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(incidentID, driverID)).Result()
	if err != nil {
		return false, fmt.Errorf("alert dedup check: %w", err)
	}
	return n > 0, nil
}

// MarkAlert records the alert. The TTL matches the incident's remaining
// lifetime so the key disappears with the incident.
func (d *AlertDedup) MarkAlert(ctx context.Context, incidentID, driverID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return d.client.Set(ctx, d.key(incidentID, driverID), "1", ttl).Err()
}

func (d *AlertDedup) key(incidentID, driverID string) string {
	return fmt.Sprintf("incident-alert:%s:%s", incidentID, driverID)
}
