// Package cache keeps hot lookups off the primary database. The only
// cached value today is the open-shift pointer per store location; it is
// strictly an accelerator, the database remains the source of truth.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ShiftCache maps (tenant, location) to the currently open shift id.
type ShiftCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewShiftCache constructs a ShiftCache.
func NewShiftCache(client *redis.Client, ttl time.Duration) *ShiftCache {
	return &ShiftCache{client: client, ttl: ttl}
}

// ErrMiss indicates the key is absent.
var ErrMiss = errors.New("cache miss")

func shiftKey(tenantID, locationID uuid.UUID) string {
	return fmt.Sprintf("shift:%s:%s", tenantID, locationID)
}

// Get returns the cached open-shift id for the location.
func (c *ShiftCache) Get(ctx context.Context, tenantID, locationID uuid.UUID) (uuid.UUID, error) {
	if c == nil || c.client == nil {
		return uuid.Nil, ErrMiss
	}
	val, err := c.client.Get(ctx, shiftKey(tenantID, locationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrMiss
		}
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrMiss
	}
	return id, nil
}

// Set records the open shift for the location.
func (c *ShiftCache) Set(ctx context.Context, tenantID, locationID, shiftID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, shiftKey(tenantID, locationID), shiftID.String(), c.ttl).Err()
}

// Invalidate drops the pointer, typically on shift close.
func (c *ShiftCache) Invalidate(ctx context.Context, tenantID, locationID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, shiftKey(tenantID, locationID)).Err()
}
