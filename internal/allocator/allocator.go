/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package allocator packs feature requests into a bounded number of
// concurrent promotion slots.
package allocator

import (
	"sort"
	"time"
)

// Request is one schedule entry competing for a slot.
type Request struct {
	ID               string
	EventKey         string
	RequestedStartAt time.Time
	CreatedAt        time.Time
	DurationHours    int
}

// Window is the effective [StartsAt, EndsAt) granted to a request.
type Window struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// Allocate assigns every request a non-overlapping-per-slot window using
// greedy list scheduling over maxConcurrent slots. It is pure and
// deterministic: the full set is recomputed from scratch on every call, so
// the result is independent of any prior allocation state and self-heals
// after manual data edits or partial failures.
//
// Requests are served in (RequestedStartAt, CreatedAt, EventKey, ID) order.
// Each takes the slot that frees up earliest (lowest slot index on ties) and
// starts at max(requested, slot free); an entry's start is deferred only when
// every slot is busy past its requested time.
func Allocate(requests []Request, maxConcurrent int) map[string]Window {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	ordered := make([]Request, len(requests))
	copy(ordered, requests)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.RequestedStartAt.Equal(b.RequestedStartAt) {
			return a.RequestedStartAt.Before(b.RequestedStartAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.EventKey != b.EventKey {
			return a.EventKey < b.EventKey
		}
		return a.ID < b.ID
	})

	// Zero time means "free since forever".
	slotFree := make([]time.Time, maxConcurrent)

	windows := make(map[string]Window, len(ordered))
	for _, req := range ordered {
		slot := 0
		for i := 1; i < maxConcurrent; i++ {
			if slotFree[i].Before(slotFree[slot]) {
				slot = i
			}
		}

		start := req.RequestedStartAt
		if slotFree[slot].After(start) {
			start = slotFree[slot]
		}
		end := start.Add(time.Duration(clampDuration(req.DurationHours)) * time.Hour)

		windows[req.ID] = Window{StartsAt: start, EndsAt: end}
		slotFree[slot] = end
	}

	return windows
}

// clampDuration keeps window lengths inside the supported range so a bad
// stored value can never produce a zero-length or unbounded window.
func clampDuration(hours int) int {
	if hours < minDurationHours {
		return minDurationHours
	}
	if hours > maxDurationHours {
		return maxDurationHours
	}
	return hours
}

const (
	minDurationHours = 1
	maxDurationHours = 168
)
