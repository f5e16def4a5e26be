// Package usage tracks best-effort request counters and serves the
// cached /api/stats aggregate (spec §6, config.UsageMetricsEnabled).
//
// Writes are fire-and-forget: a dropped counter increment never fails
// the request that triggered it. Reads are cache-aside against Redis
// when configured, falling back to the store directly when Redis is
// absent or unreachable, the same degrade-gracefully posture the
// teacher's rate limiter takes toward Redis.
package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"healtharchive/internal/store"
)

const cacheKey = "healtharchive:stats:v1"
const cacheTTL = 60 * time.Second

// Tracker wraps the usage_daily table with an optional Redis cache in
// front of the aggregate read path.
type Tracker struct {
	Store      *store.Store
	Redis      *redis.Client
	Enabled    bool
	WindowDays int
	Logger     zerolog.Logger
}

// New builds a Tracker. rdb may be nil, in which case Stats always
// reads through to the store (the same pattern router.go uses: a nil
// rdb degrades a Redis-backed feature rather than failing startup).
func New(s *store.Store, rdb *redis.Client, enabled bool, windowDays int, logger zerolog.Logger) *Tracker {
	return &Tracker{Store: s, Redis: rdb, Enabled: enabled, WindowDays: windowDays, Logger: logger}
}

// NewRedisClient parses redisURL the way router.go does for its rate
// limiter, returning nil (not an error) when redisURL is empty so
// callers can wire an always-present *Tracker regardless of whether
// Redis is configured.
func NewRedisClient(redisURL string) *redis.Client {
	if redisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil
	}
	return redis.NewClient(opt)
}

// RecordEvent increments today's counter for eventType in a detached
// goroutine. The caller's ctx is not used for the write itself, since
// the write must outlive a request context that may already be
// cancelled by the time the goroutine runs.
func (t *Tracker) RecordEvent(eventType string) {
	if t == nil || !t.Enabled {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.Store.RecordUsageEvent(ctx, eventType, time.Now()); err != nil {
			t.Logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to record usage event")
		}
	}()
}

// Stats returns the trailing-window event totals, preferring a cached
// copy in Redis over recomputing from usage_daily on every request.
func (t *Tracker) Stats(ctx context.Context) (map[string]int64, error) {
	if t.Redis != nil {
		if cached, ok := t.readCache(ctx); ok {
			return cached, nil
		}
	}

	totals, err := t.Store.UsageTotals(ctx, t.WindowDays, time.Now())
	if err != nil {
		return nil, err
	}

	if t.Redis != nil {
		t.writeCache(ctx, totals)
	}
	return totals, nil
}

func (t *Tracker) readCache(ctx context.Context) (map[string]int64, bool) {
	raw, err := t.Redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			t.Logger.Warn().Err(err).Msg("usage cache read failed")
		}
		return nil, false
	}
	var totals map[string]int64
	if err := json.Unmarshal(raw, &totals); err != nil {
		t.Logger.Warn().Err(err).Msg("usage cache payload corrupt")
		return nil, false
	}
	return totals, true
}

func (t *Tracker) writeCache(ctx context.Context, totals map[string]int64) {
	raw, err := json.Marshal(totals)
	if err != nil {
		return
	}
	if err := t.Redis.Set(ctx, cacheKey, raw, cacheTTL).Err(); err != nil {
		t.Logger.Warn().Err(err).Msg("usage cache write failed")
	}
}
