/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for catalog reads.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/lutece_agenda/internal/models"
)

// Default TTL values for different cache types
const (
	DefaultEventNameTTL = 1 * time.Hour
	DefaultEventListTTL = 5 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyEventName = "lutece:cache:event_name:" // + event_key
	KeyEventList = "lutece:cache:events:"     // + category (or "all")
)

// Config contains cache configuration.
type Config struct {
	EventNameTTL time.Duration
	EventListTTL time.Duration

	// If true, disable caching on Redis errors instead of retrying.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		EventNameTTL:   DefaultEventNameTTL,
		EventListTTL:   DefaultEventListTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil *Cache is
// valid and caches nothing.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a cache on an existing Redis client. An unreachable Redis
// degrades to a no-op cache rather than failing startup.
func New(client *redis.Client, cfg Config, logger zerolog.Logger) *Cache {
	c := &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		c.disabled = true
	}
	return c
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if !c.IsAvailable() {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.handleError(err, "get")
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false
	}
	return true
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.IsAvailable() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to marshal cache value")
		return
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
	}
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// SCAN rather than KEYS, which blocks Redis on large keyspaces.
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return nil
}

// GetEventName retrieves a cached event display name.
func (c *Cache) GetEventName(ctx context.Context, eventKey string) (string, bool) {
	var name string
	if !c.get(ctx, KeyEventName+eventKey, &name) {
		return "", false
	}
	return name, true
}

// SetEventName caches an event display name.
func (c *Cache) SetEventName(ctx context.Context, eventKey, name string) {
	if c == nil {
		return
	}
	c.set(ctx, KeyEventName+eventKey, name, c.config.EventNameTTL)
}

// listKey builds the event list cache key for a category filter.
func listKey(category string, limit int) string {
	if category == "" {
		category = "all"
	}
	return fmt.Sprintf("%s%s:%d", KeyEventList, category, limit)
}

// GetEventList retrieves a cached event listing.
func (c *Cache) GetEventList(ctx context.Context, category string, limit int) ([]models.Event, bool) {
	var events []models.Event
	if !c.get(ctx, listKey(category, limit), &events) {
		return nil, false
	}
	c.logger.Debug().Str("category", category).Int("count", len(events)).Msg("event list cache hit")
	return events, true
}

// SetEventList caches an event listing.
func (c *Cache) SetEventList(ctx context.Context, category string, limit int, events []models.Event) {
	if c == nil {
		return
	}
	c.set(ctx, listKey(category, limit), events, c.config.EventListTTL)
}

// InvalidateEvents removes all cached catalog data, for use after ingestion.
func (c *Cache) InvalidateEvents(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating catalog caches")
	return c.deletePattern(ctx, "lutece:cache:*")
}
