package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

// RedisAvailability caches resolved per-day openings in Redis. Entries are
// versioned per parking: invalidation bumps the version counter so stale
// entries become unreachable and age out via TTL. Only the display path
// reads this cache; booking admission always resolves fresh.
type RedisAvailability struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisAvailability(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisAvailability {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisAvailability{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "availability_cache").Logger(),
	}
}

func (c *RedisAvailability) GetOpenings(ctx context.Context, parkingID, from, to string) ([]schedule.DayOpening, bool) {
	key, err := c.dataKey(ctx, parkingID, from, to)
	if err != nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("parking_id", parkingID).Msg("cache read failed")
		}
		return nil, false
	}

	var openings []schedule.DayOpening
	if err := json.Unmarshal(raw, &openings); err != nil {
		return nil, false
	}
	return openings, true
}

func (c *RedisAvailability) SetOpenings(ctx context.Context, parkingID, from, to string, openings []schedule.DayOpening) {
	key, err := c.dataKey(ctx, parkingID, from, to)
	if err != nil {
		return
	}

	raw, err := json.Marshal(openings)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("parking_id", parkingID).Msg("cache write failed")
	}
}

func (c *RedisAvailability) Invalidate(ctx context.Context, parkingID string) {
	if err := c.client.Incr(ctx, versionKey(parkingID)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("parking_id", parkingID).Msg("cache invalidation failed")
	}
}

func (c *RedisAvailability) dataKey(ctx context.Context, parkingID, from, to string) (string, error) {
	version, err := c.client.Get(ctx, versionKey(parkingID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("parking:openings:%s:v%d:%s:%s", parkingID, version, from, to), nil
}

func versionKey(parkingID string) string {
	return "parking:openings:version:" + parkingID
}

// NopAvailability disables caching. Used when Redis is not configured and
// in tests.
type NopAvailability struct{}

func (NopAvailability) GetOpenings(context.Context, string, string, string) ([]schedule.DayOpening, bool) {
	return nil, false
}

func (NopAvailability) SetOpenings(context.Context, string, string, string, []schedule.DayOpening) {}

func (NopAvailability) Invalidate(context.Context, string) {}
