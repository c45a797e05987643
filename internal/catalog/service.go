/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog is the read side of the event listings table. Rows are
// produced by the ingestion pipeline; this service only queries them.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lutece_agenda/internal/cache"
	"github.com/friendsincode/lutece_agenda/internal/models"
)

// Service provides read access to catalog events.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewService creates a catalog read service. The cache may be nil.
func NewService(db *gorm.DB, c *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// EventNames resolves event keys to display names. Unknown keys are simply
// absent from the result.
func (s *Service) EventNames(ctx context.Context, keys []string) (map[string]string, error) {
	names := make(map[string]string, len(keys))

	var misses []string
	for _, key := range keys {
		if name, ok := s.cache.GetEventName(ctx, key); ok {
			names[key] = name
			continue
		}
		misses = append(misses, key)
	}
	if len(misses) == 0 {
		return names, nil
	}

	var rows []models.Event
	err := s.db.WithContext(ctx).
		Select("event_key", "name").
		Where("event_key IN ?", misses).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("resolve event names: %w", err)
	}

	for _, row := range rows {
		names[row.EventKey] = row.Name
		s.cache.SetEventName(ctx, row.EventKey, row.Name)
	}
	return names, nil
}

// GetByKey returns the event with the given key, or nil when absent.
func (s *Service) GetByKey(ctx context.Context, key string) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).First(&event, "event_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", key, err)
	}
	return &event, nil
}

// ListEvents returns catalog events, optionally filtered by category,
// ordered by start date then name.
func (s *Service) ListEvents(ctx context.Context, category string, limit int) ([]models.Event, error) {
	if cached, ok := s.cache.GetEventList(ctx, category, limit); ok {
		return cached, nil
	}

	query := s.db.WithContext(ctx).Model(&models.Event{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.Event
	if err := query.Order("start_date ASC, name ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	s.cache.SetEventList(ctx, category, limit, events)
	return events, nil
}
