package surge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CacheRecorder counts cache outcomes.
type CacheRecorder interface {
	CacheHit()
	CacheMiss()
}

// CachedHistory is a read-through Redis cache in front of a
// HistoryRepository. Only hourly arrivals are cached; Redis errors fall
// through to the repository.
type CachedHistory struct {
	next     HistoryRepository
	client   redisClient
	ttl      time.Duration
	logger   zerolog.Logger
	recorder CacheRecorder
}

func NewCachedHistory(next HistoryRepository, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedHistory {
	return newCachedHistory(next, client, ttl, logger)
}

func newCachedHistory(next HistoryRepository, client redisClient, ttl time.Duration, logger zerolog.Logger) *CachedHistory {
	return &CachedHistory{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedHistory) SetRecorder(r CacheRecorder) { c.recorder = r }

func historyKey(hospitalID uuid.UUID, since, until time.Time) string {
	return fmt.Sprintf("surge:history:%s:%d:%d", hospitalID, since.Unix(), until.Unix())
}

func (c *CachedHistory) HourlyArrivals(ctx context.Context, hospitalID uuid.UUID, since, until time.Time) ([]Sample, error) {
	key := historyKey(hospitalID, since, until)
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var samples []Sample
		if jerr := json.Unmarshal(data, &samples); jerr == nil {
			if c.recorder != nil {
				c.recorder.CacheHit()
			}
			return samples, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable history cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("history cache read failed")
	}
	if c.recorder != nil {
		c.recorder.CacheMiss()
	}

	samples, err := c.next.HourlyArrivals(ctx, hospitalID, since, until)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(samples); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("history cache write failed")
		}
	}
	return samples, nil
}

func (c *CachedHistory) GetHospital(ctx context.Context, id uuid.UUID) (*HospitalRef, error) {
	return c.next.GetHospital(ctx, id)
}

func (c *CachedHistory) ListActiveHospitals(ctx context.Context) ([]HospitalRef, error) {
	return c.next.ListActiveHospitals(ctx)
}
