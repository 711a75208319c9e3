package rostercache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"classroll/internal/attendance"
	"classroll/internal/metrics"
)

const keyPrefix = "classroll:roster:"

// Gateway serves rosters from redis and delegates everything else, including
// roster misses, to the wrapped gateway. Redis failures degrade to a miss.
type Gateway struct {
	attendance.Gateway
	rdb *redis.Client
	ttl time.Duration
	log logr.Logger
}

var (
	_ attendance.Gateway           = (*Gateway)(nil)
	_ attendance.RosterInvalidator = (*Gateway)(nil)
)

// Wrap decorates next with a roster cache.
func Wrap(next attendance.Gateway, rdb *redis.Client, ttl time.Duration, log logr.Logger) *Gateway {
	return &Gateway{Gateway: next, rdb: rdb, ttl: ttl, log: log}
}

// Key is the redis key holding a roster.
func Key(subjectID, batch string) string {
	return keyPrefix + subjectID + ":" + batch
}

// Roster returns the cached roster, fetching and storing it on a miss.
func (g *Gateway) Roster(ctx context.Context, subjectID, batch string) ([]attendance.Student, error) {
	key := Key(subjectID, batch)
	raw, err := g.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var roster []attendance.Student
		if err := json.Unmarshal(raw, &roster); err == nil {
			metrics.RecordCacheLookup(true)
			return roster, nil
		}
		g.log.Info("Dropping undecodable roster cache entry", "key", key)
		g.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		g.log.Error(err, "Roster cache read failed", "key", key)
	}
	metrics.RecordCacheLookup(false)

	roster, err := g.Gateway.Roster(ctx, subjectID, batch)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(roster); err == nil {
		if err := g.rdb.Set(ctx, key, raw, g.ttl).Err(); err != nil {
			g.log.Error(err, "Roster cache write failed", "key", key)
		}
	}
	return roster, nil
}

// InvalidateRoster drops a cached roster.
func (g *Gateway) InvalidateRoster(ctx context.Context, subjectID, batch string) error {
	return g.rdb.Del(ctx, Key(subjectID, batch)).Err()
}
