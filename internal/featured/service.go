/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package featured maintains the bounded set of featured promotion slots:
// who is shown when, for how long, and how schedule edits are re-packed
// without ever exceeding the concurrency cap.
package featured

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/lutece_agenda/internal/allocator"
	"github.com/friendsincode/lutece_agenda/internal/events"
	"github.com/friendsincode/lutece_agenda/internal/localtime"
	"github.com/friendsincode/lutece_agenda/internal/models"
	"github.com/friendsincode/lutece_agenda/internal/schedlock"
	"github.com/friendsincode/lutece_agenda/internal/telemetry"
)

var (
	// ErrEventKeyRequired reports a schedule request without an event key.
	ErrEventKeyRequired = errors.New("event key is required")
	// ErrDurationOutOfRange reports an explicit duration outside [1, 168] hours.
	ErrDurationOutOfRange = fmt.Errorf("duration must be between %d and %d hours", models.MinDurationHours, models.MaxDurationHours)
	// ErrStartRequired reports a reschedule without a start time.
	ErrStartRequired = errors.New("start time is required")
	// ErrNotReschedulable reports a reschedule of an entry that exists but is
	// cancelled or completed. Distinct from the not-found boolean so callers
	// can tell a dead id from an immutable one.
	ErrNotReschedulable = errors.New("only scheduled entries can be rescheduled")
	// ErrLockerRequired reports a service constructed without schedule
	// locking. An unlocked schedule could race two recompute passes, so this
	// is a configuration error, not a degraded mode.
	ErrLockerRequired = errors.New("featured scheduler requires a configured schedule lock")
)

// Config carries the process-wide slot settings, fixed at startup.
type Config struct {
	MaxConcurrent        int
	DefaultDurationHours int
	Timezone             string
	RecentEndedWindow    time.Duration
	SweepInterval        time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 3
	}
	if c.DefaultDurationHours < models.MinDurationHours || c.DefaultDurationHours > models.MaxDurationHours {
		c.DefaultDurationHours = 48
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Paris"
	}
	if c.RecentEndedWindow <= 0 {
		c.RecentEndedWindow = 48 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// EventNamer resolves event keys to display names for the queue view.
type EventNamer interface {
	EventNames(ctx context.Context, keys []string) (map[string]string, error)
}

// Service orchestrates the featured schedule: it validates input, writes
// entries through the repository, and re-runs the allocator after every
// mutation while holding the exclusive schedule lock.
type Service struct {
	repo    Repository
	locker  schedlock.Locker
	catalog EventNamer
	bus     *events.Bus
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService constructs the scheduling service. A nil locker is rejected:
// silently falling back to unlocked recomputes would let concurrent admin
// actions violate the concurrency cap.
func NewService(repo Repository, locker schedlock.Locker, catalog EventNamer, bus *events.Bus, cfg Config, logger zerolog.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("featured scheduler requires a configured backing store")
	}
	if locker == nil {
		return nil, ErrLockerRequired
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		catalog: catalog,
		bus:     bus,
		cfg:     cfg.withDefaults(),
		logger:  logger.With().Str("component", "featured").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// ScheduleRequest is the input to Schedule. StartAtLocal is an optional
// wall-clock time in the configured timezone; empty means "now".
// DurationHours zero means the configured default.
type ScheduleRequest struct {
	EventKey      string
	StartAtLocal  string
	DurationHours int
	Actor         string
}

// Schedule creates a new feature request and returns it as stored after the
// recompute pass, so the caller sees the effective window rather than a
// stale guess.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*models.FeatureSchedule, error) {
	if req.EventKey == "" {
		return nil, ErrEventKeyRequired
	}

	duration := req.DurationHours
	if duration == 0 {
		duration = s.cfg.DefaultDurationHours
	}
	if duration < models.MinDurationHours || duration > models.MaxDurationHours {
		return nil, ErrDurationOutOfRange
	}

	requested := s.now().Truncate(time.Minute)
	if req.StartAtLocal != "" {
		parsed, err := localtime.ParseLocalWallClock(req.StartAtLocal, s.cfg.Timezone)
		if err != nil {
			return nil, err
		}
		requested = parsed
	}

	entry := &models.FeatureSchedule{
		ID:               uuid.NewString(),
		EventKey:         req.EventKey,
		RequestedStartAt: requested,
		DurationHours:    duration,
		Status:           models.FeatureStatusScheduled,
		CreatedBy:        req.Actor,
	}

	var stored *models.FeatureSchedule
	err := s.locker.WithLock(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, entry); err != nil {
			return err
		}
		if err := s.recompute(ctx, "schedule"); err != nil {
			return err
		}
		var err error
		stored, err = s.repo.Get(ctx, entry.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("id", entry.ID).
		Str("event_key", entry.EventKey).
		Time("requested_start", requested).
		Int("duration_hours", duration).
		Msg("feature scheduled")
	s.publish(events.EventFeatureScheduled, events.Payload{
		"id":        entry.ID,
		"event_key": entry.EventKey,
		"actor":     req.Actor,
	})

	return stored, nil
}

// Cancel marks the entry cancelled and re-packs the remaining queue.
// A missing id is a normal boolean outcome, not an error.
func (s *Service) Cancel(ctx context.Context, id, actor string) (bool, error) {
	var found bool
	err := s.locker.WithLock(ctx, func(ctx context.Context) error {
		var err error
		found, err = s.repo.Cancel(ctx, id)
		if err != nil || !found {
			return err
		}
		return s.recompute(ctx, "cancel")
	})
	if err != nil {
		return false, err
	}

	if found {
		s.logger.Info().Str("id", id).Msg("feature cancelled")
		s.publish(events.EventFeatureCancelled, events.Payload{"id": id, "actor": actor})
	}
	return found, nil
}

// Reschedule updates the requested start and, when non-zero, the duration of
// a scheduled entry, then re-packs the queue. Inputs are validated before
// any write. A missing id is the boolean outcome; a cancelled or completed
// entry is ErrNotReschedulable.
func (s *Service) Reschedule(ctx context.Context, id, startAtLocal string, durationHours int, actor string) (bool, error) {
	if startAtLocal == "" {
		return false, ErrStartRequired
	}
	requested, err := localtime.ParseLocalWallClock(startAtLocal, s.cfg.Timezone)
	if err != nil {
		return false, err
	}
	if durationHours != 0 && (durationHours < models.MinDurationHours || durationHours > models.MaxDurationHours) {
		return false, ErrDurationOutOfRange
	}

	var found bool
	err = s.locker.WithLock(ctx, func(ctx context.Context) error {
		entry, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		if entry.Status != models.FeatureStatusScheduled {
			return ErrNotReschedulable
		}

		duration := durationHours
		if duration == 0 {
			duration = entry.DurationHours
		}

		found, err = s.repo.Reschedule(ctx, id, requested, duration)
		if err != nil || !found {
			return err
		}
		return s.recompute(ctx, "reschedule")
	})
	if err != nil {
		return false, err
	}

	if found {
		s.logger.Info().Str("id", id).Time("requested_start", requested).Msg("feature rescheduled")
		s.publish(events.EventFeatureRescheduled, events.Payload{"id": id, "actor": actor})
	}
	return found, nil
}

// ClearQueueAndHistory removes every entry regardless of status.
func (s *Service) ClearQueueAndHistory(ctx context.Context, actor string) (int64, error) {
	return s.clear(ctx, actor, "all",
		models.FeatureStatusScheduled, models.FeatureStatusCancelled, models.FeatureStatusCompleted)
}

// ClearQueueOnly removes scheduled entries, keeping history.
func (s *Service) ClearQueueOnly(ctx context.Context, actor string) (int64, error) {
	return s.clear(ctx, actor, "queue", models.FeatureStatusScheduled)
}

// ClearHistoryOnly removes cancelled and completed entries.
func (s *Service) ClearHistoryOnly(ctx context.Context, actor string) (int64, error) {
	return s.clear(ctx, actor, "history",
		models.FeatureStatusCancelled, models.FeatureStatusCompleted)
}

func (s *Service) clear(ctx context.Context, actor, scope string, statuses ...models.FeatureStatus) (int64, error) {
	var count int64
	err := s.locker.WithLock(ctx, func(ctx context.Context) error {
		var err error
		count, err = s.repo.ClearByStatus(ctx, statuses...)
		if err != nil {
			return err
		}
		return s.recompute(ctx, "clear")
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().Str("scope", scope).Int64("deleted", count).Msg("feature schedule cleared")
	s.publish(events.EventFeatureCleared, events.Payload{"scope": scope, "deleted": count, "actor": actor})
	return count, nil
}

// Snapshot returns the full entry set for backup. Read-only, no lock.
func (s *Service) Snapshot(ctx context.Context) ([]models.FeatureSchedule, error) {
	return s.repo.List(ctx)
}

// RestoreEntries replaces the whole entry set atomically and recomputes.
func (s *Service) RestoreEntries(ctx context.Context, entries []models.FeatureSchedule, actor string) error {
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		if entry.ID == "" {
			return fmt.Errorf("restore entry %d: missing id", i)
		}
		if _, dup := seen[entry.ID]; dup {
			return fmt.Errorf("restore entry %d: duplicate id %s", i, entry.ID)
		}
		seen[entry.ID] = struct{}{}
		switch entry.Status {
		case models.FeatureStatusScheduled, models.FeatureStatusCancelled, models.FeatureStatusCompleted:
		default:
			return fmt.Errorf("restore entry %s: unknown status %q", entry.ID, entry.Status)
		}
	}

	err := s.locker.WithLock(ctx, func(ctx context.Context) error {
		if err := s.repo.ReplaceAll(ctx, entries); err != nil {
			return err
		}
		return s.recompute(ctx, "restore")
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int("entries", len(entries)).Msg("feature schedule restored")
	s.publish(events.EventFeatureRestored, events.Payload{"entries": len(entries), "actor": actor})
	return nil
}

// recompute is the full, deterministic re-pack of the schedule. It must run
// inside the caller's lock scope. Running it twice with no intervening
// mutation yields identical persisted state.
func (s *Service) recompute(ctx context.Context, trigger string) error {
	ctx, span := telemetry.StartSpan(ctx, "featured", "recompute")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"trigger": trigger})

	start := time.Now()
	now := s.now()

	if _, err := s.repo.MarkCompleted(ctx, now); err != nil {
		telemetry.RecordError(span, err)
		telemetry.RecomputeErrorsTotal.WithLabelValues("mark_completed").Inc()
		return err
	}

	revived, err := s.repo.ReviveZeroDuration(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.RecomputeErrorsTotal.WithLabelValues("revive").Inc()
		return err
	}
	if revived > 0 {
		// Should be unreachable: the allocator never emits a zero-length
		// window. Kept as repair for manual data edits.
		s.logger.Warn().Int64("revived", revived).Msg("revived zero-duration completed entries")
	}

	scheduled, err := s.repo.List(ctx, models.FeatureStatusScheduled)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.RecomputeErrorsTotal.WithLabelValues("list").Inc()
		return err
	}

	requests := make([]allocator.Request, 0, len(scheduled))
	for _, entry := range scheduled {
		requests = append(requests, allocator.Request{
			ID:               entry.ID,
			EventKey:         entry.EventKey,
			RequestedStartAt: entry.RequestedStartAt,
			CreatedAt:        entry.CreatedAt,
			DurationHours:    entry.DurationHours,
		})
	}
	windows := allocator.Allocate(requests, s.cfg.MaxConcurrent)

	if err := s.repo.UpdateWindows(ctx, windows); err != nil {
		telemetry.RecordError(span, err)
		telemetry.RecomputeErrorsTotal.WithLabelValues("persist").Inc()
		return err
	}

	telemetry.RecomputeRunsTotal.WithLabelValues(trigger).Inc()
	telemetry.RecomputeDuration.Observe(time.Since(start).Seconds())
	telemetry.ScheduledEntries.Set(float64(len(scheduled)))

	s.logger.Debug().
		Str("trigger", trigger).
		Int("scheduled", len(scheduled)).
		Msg("recompute pass finished")
	return nil
}

// Run executes the periodic sweep until the context is cancelled, so
// elapsed entries are promoted to completed even without admin traffic.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.SweepInterval).Msg("sweep loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			telemetry.SweepTicksTotal.Inc()
			err := s.locker.WithLock(ctx, func(ctx context.Context) error {
				return s.recompute(ctx, "sweep")
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("sweep recompute failed")
			}
		}
	}
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}
