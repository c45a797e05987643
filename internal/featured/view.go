/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package featured

import (
	"context"
	"sort"
	"time"

	"github.com/friendsincode/lutece_agenda/internal/localtime"
	"github.com/friendsincode/lutece_agenda/internal/models"
)

// Projection partitions the schedule into the buckets the public site
// renders. Cancelled and old completed entries are omitted. Empty buckets
// marshal as [] rather than null.
type Projection struct {
	Active      []models.FeatureSchedule `json:"active"`
	Upcoming    []models.FeatureSchedule `json:"upcoming"`
	RecentEnded []models.FeatureSchedule `json:"recent_ended"`
}

// Projection classifies every entry at now and groups the displayable ones.
// Active and upcoming sort by effective start, recent-ended by most recently
// ended first.
func (s *Service) Projection(ctx context.Context, now time.Time) (Projection, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return Projection{}, err
	}

	p := Projection{
		Active:      []models.FeatureSchedule{},
		Upcoming:    []models.FeatureSchedule{},
		RecentEnded: []models.FeatureSchedule{},
	}
	for _, entry := range entries {
		switch Classify(entry, now, s.cfg.RecentEndedWindow) {
		case StateActive:
			p.Active = append(p.Active, entry)
		case StateUpcoming:
			p.Upcoming = append(p.Upcoming, entry)
		case StateRecentEnded:
			p.RecentEnded = append(p.RecentEnded, entry)
		}
	}

	byStart := func(entries []models.FeatureSchedule) func(i, j int) bool {
		return func(i, j int) bool {
			a, b := entries[i], entries[j]
			switch {
			case a.EffectiveStartAt == nil && b.EffectiveStartAt == nil:
				return a.ID < b.ID
			case a.EffectiveStartAt == nil:
				return false
			case b.EffectiveStartAt == nil:
				return true
			case !a.EffectiveStartAt.Equal(*b.EffectiveStartAt):
				return a.EffectiveStartAt.Before(*b.EffectiveStartAt)
			default:
				return a.ID < b.ID
			}
		}
	}
	sort.Slice(p.Active, byStart(p.Active))
	sort.Slice(p.Upcoming, byStart(p.Upcoming))
	sort.Slice(p.RecentEnded, func(i, j int) bool {
		a, b := p.RecentEnded[i], p.RecentEnded[j]
		if a.EffectiveEndAt != nil && b.EffectiveEndAt != nil && !a.EffectiveEndAt.Equal(*b.EffectiveEndAt) {
			return a.EffectiveEndAt.After(*b.EffectiveEndAt)
		}
		return a.ID < b.ID
	})

	return p, nil
}

// QueueItem is one row of the admin queue view: the stored entry plus its
// derived state, position and operator-facing local time strings.
type QueueItem struct {
	ID               string     `json:"id"`
	EventKey         string     `json:"event_key"`
	EventName        string     `json:"event_name,omitempty"`
	Status           string     `json:"status"`
	State            State      `json:"state"`
	QueuePosition    int        `json:"queue_position,omitempty"`
	RequestedStartAt time.Time  `json:"requested_start_at"`
	EffectiveStartAt *time.Time `json:"effective_start_at,omitempty"`
	EffectiveEndAt   *time.Time `json:"effective_end_at,omitempty"`
	DurationHours    int        `json:"duration_hours"`
	CreatedBy        string     `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartsDisplay    string     `json:"starts_display,omitempty"`
	EndsDisplay      string     `json:"ends_display,omitempty"`
}

// BuildQueueView returns every entry decorated for the admin screen. Catalog
// lookups are best effort; a missing name leaves the key as the only label.
func (s *Service) BuildQueueView(ctx context.Context) ([]QueueItem, error) {
	now := s.now()
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	positions := QueuePositions(entries)

	var names map[string]string
	if s.catalog != nil {
		keys := make([]string, 0, len(entries))
		seen := make(map[string]struct{}, len(entries))
		for _, entry := range entries {
			if _, ok := seen[entry.EventKey]; ok {
				continue
			}
			seen[entry.EventKey] = struct{}{}
			keys = append(keys, entry.EventKey)
		}
		names, err = s.catalog.EventNames(ctx, keys)
		if err != nil {
			s.logger.Warn().Err(err).Msg("catalog lookup failed, queue view falls back to keys")
			names = nil
		}
	}

	items := make([]QueueItem, 0, len(entries))
	for _, entry := range entries {
		item := QueueItem{
			ID:               entry.ID,
			EventKey:         entry.EventKey,
			EventName:        names[entry.EventKey],
			Status:           string(entry.Status),
			State:            Classify(entry, now, s.cfg.RecentEndedWindow),
			QueuePosition:    positions[entry.ID],
			RequestedStartAt: entry.RequestedStartAt,
			EffectiveStartAt: entry.EffectiveStartAt,
			EffectiveEndAt:   entry.EffectiveEndAt,
			DurationHours:    entry.DurationHours,
			CreatedBy:        entry.CreatedBy,
			CreatedAt:        entry.CreatedAt,
		}
		if entry.EffectiveStartAt != nil {
			item.StartsDisplay = localtime.FormatDisplay(*entry.EffectiveStartAt, s.cfg.Timezone)
		}
		if entry.EffectiveEndAt != nil {
			item.EndsDisplay = localtime.FormatDisplay(*entry.EffectiveEndAt, s.cfg.Timezone)
		}
		items = append(items, item)
	}
	return items, nil
}

// ApplyActiveToEvents overlays the featured flag onto a catalog listing.
// Events whose key matches a currently active entry get IsFeatured and the
// window start; everything else is passed through untouched.
func (s *Service) ApplyActiveToEvents(ctx context.Context, evts []models.Event) ([]models.Event, error) {
	now := s.now()
	entries, err := s.repo.List(ctx, models.FeatureStatusScheduled)
	if err != nil {
		return nil, err
	}

	activeStarts := make(map[string]*time.Time, len(entries))
	for _, entry := range entries {
		if entry.Active(now) {
			activeStarts[entry.EventKey] = entry.EffectiveStartAt
		}
	}

	out := make([]models.Event, len(evts))
	copy(out, evts)
	for i := range out {
		if startsAt, ok := activeStarts[out[i].EventKey]; ok {
			out[i].IsFeatured = true
			out[i].FeaturedAt = startsAt
		}
	}
	return out, nil
}
