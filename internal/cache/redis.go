// Package cache is the advisory health/points mirror kept in Redis. The
// enforcement/pet side reads it to compute mood and penalty display without
// touching the main store. Last write wins; staleness is acceptable.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bara-app/buddy-service/internal/models"
)

// Cache mirrors profile health/points into Redis.
type Cache struct {
	rdb *redis.Client
	log *logrus.Logger
}

// Connect initializes a Redis-backed cache and verifies the connection.
func Connect(addr string, db int, log *logrus.Logger) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Cache{rdb: rdb, log: log}, nil
}

func healthKey(id uuid.UUID) string { return "buddy:health:" + id.String() }
func pointsKey(id uuid.UUID) string { return "buddy:points:" + id.String() }

// SyncProfile mirrors the profile's health and points. Failures are logged
// and dropped; the cache is advisory.
func (c *Cache) SyncProfile(ctx context.Context, p *models.BuddyProfile) {
	if err := c.rdb.Set(ctx, healthKey(p.ID), models.ClampHealth(p.Health), 0).Err(); err != nil {
		c.log.WithError(err).WithField("user_id", p.ID).Debug("health cache write failed")
	}
	if err := c.rdb.Set(ctx, pointsKey(p.ID), models.ClampPoints(p.Points), 0).Err(); err != nil {
		c.log.WithError(err).WithField("user_id", p.ID).Debug("points cache write failed")
	}
}

// CachedHealth returns the mirrored health for a user, 100 when absent or
// unreadable.
func (c *Cache) CachedHealth(ctx context.Context, id uuid.UUID) int {
	return c.getInt(ctx, healthKey(id), 100)
}

// CachedPoints returns the mirrored points for a user, zero when absent or
// unreadable.
func (c *Cache) CachedPoints(ctx context.Context, id uuid.UUID) int {
	return c.getInt(ctx, pointsKey(id), 0)
}

func (c *Cache) getInt(ctx context.Context, key string, def int) int {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
