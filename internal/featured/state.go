/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package featured

import (
	"sort"
	"time"

	"github.com/friendsincode/lutece_agenda/internal/models"
)

// State is the display state derived from an entry's lifecycle status and
// effective window at a given instant.
type State string

const (
	StateActive      State = "active"
	StateUpcoming    State = "upcoming"
	StateRecentEnded State = "recent-ended"
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
)

// Classify derives the display state of entry at now. Cancellation
// short-circuits regardless of time, so a cancelled entry whose window still
// numerically overlaps now never shows as active.
func Classify(entry models.FeatureSchedule, now time.Time, recentEndedWindow time.Duration) State {
	if entry.Status == models.FeatureStatusCancelled {
		return StateCancelled
	}

	if entry.Status == models.FeatureStatusScheduled {
		if entry.Active(now) {
			return StateActive
		}
		if entry.EffectiveStartAt == nil || now.Before(*entry.EffectiveStartAt) {
			return StateUpcoming
		}
	}

	if entry.EffectiveEndAt != nil && now.Sub(*entry.EffectiveEndAt) <= recentEndedWindow {
		return StateRecentEnded
	}
	return StateCompleted
}

// QueuePositions assigns 1-based positions to scheduled entries ordered by
// (EffectiveStartAt, ID). Entries in any other status have no position.
func QueuePositions(entries []models.FeatureSchedule) map[string]int {
	scheduled := make([]models.FeatureSchedule, 0, len(entries))
	for _, e := range entries {
		if e.Status == models.FeatureStatusScheduled {
			scheduled = append(scheduled, e)
		}
	}

	sort.Slice(scheduled, func(i, j int) bool {
		a, b := scheduled[i], scheduled[j]
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
	})

	positions := make(map[string]int, len(scheduled))
	for i, e := range scheduled {
		positions[e.ID] = i + 1
	}
	return positions
}
