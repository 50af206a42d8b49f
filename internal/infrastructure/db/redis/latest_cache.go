package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/redis/go-redis/v9"

	"github.com/roadsync/tracking-system/internal/core/domain"
)

const (
	latestTTL = time.Hour

	// bucketPrecision of 5 yields ~4.9 km x 4.9 km geohash cells, matching
	// the default proximity search radius.
	bucketPrecision = 5
)

// LatestCache mirrors each driver's newest point into Redis so other services
// can read live positions without touching the history store. Alongside the
// per-driver key it maintains geohash bucket sets (drivers:<geohash>) used by
// dispatch consumers for coarse candidate matching.
type LatestCache struct {
	client *redis.Client
}

func NewLatestCache(client *redis.Client) *LatestCache {
	return &LatestCache{client: client}
}

// Store writes the point as the driver's latest and moves the driver between
// geohash buckets when the cell changed. Callers only invoke this for points
// that advanced the latest view, so no freshness check is repeated here.
func (c *LatestCache) Store(ctx context.Context, p *domain.LocationPoint) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("latest cache: marshal point: %w", err)
	}

	bucket := geohash.EncodeWithPrecision(p.Latitude, p.Longitude, bucketPrecision)
	prev, err := c.client.GetSet(ctx, c.bucketKey(p.DriverID), bucket).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("latest cache: bucket lookup: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.latestKey(p.DriverID), payload, latestTTL)
	pipe.Expire(ctx, c.bucketKey(p.DriverID), latestTTL)
	if prev != "" && prev != bucket {
		pipe.SRem(ctx, c.driversKey(prev), p.DriverID)
	}
	pipe.SAdd(ctx, c.driversKey(bucket), p.DriverID)
	pipe.Expire(ctx, c.driversKey(bucket), latestTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("latest cache: %w", err)
	}
	return nil
}

// Latest reads a driver's cached point, or domain.ErrLocationNotFound when
// the key is absent or expired.
func (c *LatestCache) Latest(ctx context.Context, driverID string) (*domain.LocationPoint, error) {
	raw, err := c.client.Get(ctx, c.latestKey(driverID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrLocationNotFound
		}
		return nil, fmt.Errorf("latest cache: %w", err)
	}
	var p domain.LocationPoint
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("latest cache: unmarshal point: %w", err)
	}
	return &p, nil
}

func (c *LatestCache) latestKey(driverID string) string {
	return "driver:latest:" + driverID
}

func (c *LatestCache) bucketKey(driverID string) string {
	return "driver:bucket:" + driverID
}

func (c *LatestCache) driversKey(bucket string) string {
	return "drivers:" + bucket
}
