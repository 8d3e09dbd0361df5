package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ordermesh/hub/internal/store"
)

const (
	dedupTTL       = 24 * time.Hour
	redisKeyPrefix = "ordermesh:webhook:dedup:"
)

// dedupResult describes the outcome of a replay check.
type dedupResult struct {
	isDuplicate bool
	eventID     uuid.UUID
}

// deduplicator checks whether an inbound webhook has already been recorded,
// using Redis as a fast cache in front of the authoritative Postgres
// unique-key check.
type deduplicator struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func newDeduplicator(rdb *redis.Client, logger *slog.Logger) *deduplicator {
	return &deduplicator{rdb: rdb, logger: logger}
}

func dedupKey(storeID uuid.UUID, externalID, eventType string) string {
	return redisKeyPrefix + storeID.String() + ":" + eventType + ":" + externalID
}

// check looks up the (store, externalID, eventType) triple in Redis, falling
// back to Postgres on a cache miss or a Redis error. A Postgres hit warms the
// cache so the next replay of the same event is a single round trip.
func (d *deduplicator) check(ctx context.Context, s *store.Store, storeID uuid.UUID, externalID, eventType string) (dedupResult, error) {
	key := dedupKey(storeID, externalID, eventType)

	val, err := d.rdb.Get(ctx, key).Result()
	if err == nil {
		if id, parseErr := uuid.Parse(val); parseErr == nil {
			return dedupResult{isDuplicate: true, eventID: id}, nil
		}
		d.logger.Warn("invalid uuid in webhook dedup cache", "key", key)
	} else if err != redis.Nil {
		d.logger.Warn("redis webhook dedup lookup failed, falling back to postgres", "error", err)
	}

	existing, err := s.FindWebhookEvent(ctx, storeID, externalID, eventType)
	if err != nil {
		return dedupResult{}, nil
	}

	d.record(ctx, storeID, externalID, eventType, existing.ID)
	return dedupResult{isDuplicate: true, eventID: existing.ID}, nil
}

// record caches a newly inserted event's id so a near-term replay is caught
// by Redis before it ever reaches Postgres.
func (d *deduplicator) record(ctx context.Context, storeID uuid.UUID, externalID, eventType string, eventID uuid.UUID) {
	key := dedupKey(storeID, externalID, eventType)
	if err := d.rdb.Set(ctx, key, eventID.String(), dedupTTL).Err(); err != nil {
		d.logger.Warn("failed to warm webhook dedup cache", "error", err, "key", key)
	}
}
