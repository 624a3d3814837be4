package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const warmKeyPrefix = "stockpulse:quote:"

// WarmCache is the Redis tier between the in-process map and the pull path.
// Entries expire server-side via TTL. Redis being down degrades to misses.
type WarmCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewWarmCache wraps a Redis client as the warm quote tier.
func NewWarmCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *WarmCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &WarmCache{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "warmcache").Logger(),
	}
}

// Get looks up a cached entry. Any Redis error is logged and treated as a
// miss so the caller falls through to the pull path.
func (w *WarmCache) Get(ctx context.Context, symbol string) (Entry, bool) {
	data, err := w.client.Get(ctx, warmKeyPrefix+symbol).Bytes()
	if err == redis.Nil {
		return Entry{}, false
	}
	if err != nil {
		w.log.Warn().Err(err).Str("symbol", symbol).Msg("warm cache read failed")
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		w.log.Warn().Err(err).Str("symbol", symbol).Msg("warm cache entry corrupt")
		return Entry{}, false
	}
	return e, true
}

// Set stores an entry with the tier TTL.
func (w *WarmCache) Set(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry %s: %w", e.Symbol, err)
	}
	if err := w.client.Set(ctx, warmKeyPrefix+e.Symbol, data, w.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", e.Symbol, err)
	}
	return nil
}
