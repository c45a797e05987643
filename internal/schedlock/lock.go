/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedlock provides the exclusive advisory lock that serializes
// recompute passes over the featured schedule. Two concurrent admin actions
// must never interleave allocator runs, or they could race to persist
// different slot assignments for the same entry.
package schedlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLockKey = "lutece:lock:featured"

	// Lease duration: the lock self-expires if the holder dies mid-recompute.
	// A recompute pass is a handful of row updates, far below this.
	defaultLease = 30 * time.Second

	// How long an acquirer waits for a contended lock before giving up.
	defaultAcquireTimeout = 10 * time.Second

	defaultRetryInterval = 100 * time.Millisecond
)

// ErrNotAcquired reports that the lock stayed contended for the whole
// acquire window.
var ErrNotAcquired = errors.New("schedule lock not acquired")

// Locker runs a function under mutual exclusion over the schedule entry set.
type Locker interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// RedisLocker implements Locker with a Redis SET NX PX lease keyed by an
// owner token, so only the instance that acquired the lock can release it.
type RedisLocker struct {
	client         *redis.Client
	logger         zerolog.Logger
	key            string
	lease          time.Duration
	acquireTimeout time.Duration
	retryInterval  time.Duration
}

// NewRedisLocker verifies connectivity and returns the locker. A failed ping
// is surfaced here so a misconfigured deployment dies at startup instead of
// on the first admin action.
func NewRedisLocker(client *redis.Client, logger zerolog.Logger) (*RedisLocker, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("featured scheduler requires a reachable Redis for schedule locking: %w", err)
	}

	return &RedisLocker{
		client:         client,
		logger:         logger.With().Str("component", "schedlock").Logger(),
		key:            defaultLockKey,
		lease:          defaultLease,
		acquireTimeout: defaultAcquireTimeout,
		retryInterval:  defaultRetryInterval,
	}, nil
}

// releaseScript deletes the lock only when the stored owner token matches,
// so an expired lease taken over by another instance is never released by
// the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// WithLock acquires the lease, runs fn, and releases. The lock must not be
// held across calls other than the repository's own reads and writes.
func (l *RedisLocker) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	acquireCtx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	for {
		ok, err := l.client.SetNX(acquireCtx, l.key, token, l.lease).Result()
		if err != nil {
			return fmt.Errorf("acquire schedule lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-acquireCtx.Done():
			return fmt.Errorf("%w after %s", ErrNotAcquired, l.acquireTimeout)
		case <-time.After(l.retryInterval):
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Msg("failed to release schedule lock, lease will expire")
		}
	}()

	return fn(ctx)
}
