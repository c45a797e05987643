/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lutece_agenda/internal/events"
	"github.com/friendsincode/lutece_agenda/internal/models"
)

// Audit actions recorded for schedule mutations.
const (
	ActionFeatureSchedule   = "feature.schedule"
	ActionFeatureCancel     = "feature.cancel"
	ActionFeatureReschedule = "feature.reschedule"
	ActionFeatureClear      = "feature.clear"
	ActionFeatureRestore    = "feature.restore"
)

// Service records admin actions by subscribing to schedule events and
// persisting them as audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to schedule events and logs them until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	scheduled := s.bus.Subscribe(events.EventFeatureScheduled)
	cancelled := s.bus.Subscribe(events.EventFeatureCancelled)
	rescheduled := s.bus.Subscribe(events.EventFeatureRescheduled)
	cleared := s.bus.Subscribe(events.EventFeatureCleared)
	restored := s.bus.Subscribe(events.EventFeatureRestored)

	defer func() {
		s.bus.Unsubscribe(events.EventFeatureScheduled, scheduled)
		s.bus.Unsubscribe(events.EventFeatureCancelled, cancelled)
		s.bus.Unsubscribe(events.EventFeatureRescheduled, rescheduled)
		s.bus.Unsubscribe(events.EventFeatureCleared, cleared)
		s.bus.Unsubscribe(events.EventFeatureRestored, restored)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return
		case payload := <-scheduled:
			s.logEvent(ctx, ActionFeatureSchedule, payload)
		case payload := <-cancelled:
			s.logEvent(ctx, ActionFeatureCancel, payload)
		case payload := <-rescheduled:
			s.logEvent(ctx, ActionFeatureReschedule, payload)
		case payload := <-cleared:
			s.logEvent(ctx, ActionFeatureClear, payload)
		case payload := <-restored:
			s.logEvent(ctx, ActionFeatureRestore, payload)
		}
	}
}

func (s *Service) logEvent(ctx context.Context, action string, payload events.Payload) {
	entry := &models.AuditEntry{
		Action: action,
		Detail: make(map[string]any),
	}

	if actor, ok := payload["actor"].(string); ok {
		entry.Actor = actor
	}
	if id, ok := payload["id"].(string); ok {
		entry.EntityID = id
	}
	for k, v := range payload {
		switch k {
		case "actor", "id":
		default:
			entry.Detail[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly, for actions that bypass the bus.
func (s *Service) Log(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Detail == nil {
		entry.Detail = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", entry.Action).
		Str("id", entry.ID).
		Msg("audit entry logged")
	return nil
}

// QueryFilters defines filters for querying the audit trail.
type QueryFilters struct {
	Actor     string
	Action    string
	EntityID  string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit entries with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditEntry, int64, error) {
	var entries []models.AuditEntry
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditEntry{})
	if filters.Actor != "" {
		query = query.Where("actor = ?", filters.Actor)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.EntityID != "" {
		query = query.Where("entity_id = ?", filters.EntityID)
	}
	if filters.StartTime != nil {
		query = query.Where("created_at >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("created_at <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
