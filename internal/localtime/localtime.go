/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package localtime converts operator-supplied wall-clock times in a fixed
// IANA timezone to absolute instants and back, correctly across DST
// transitions.
package localtime

import (
	"errors"
	"fmt"
	"time"
)

// WallClockLayout is the only accepted input shape for operator times.
const WallClockLayout = "2006-01-02T15:04"

// DisplayLayout renders instants for the queue view and audit logs.
const DisplayLayout = "2 Jan 2006 15:04"

// maxResolveIterations bounds the wall-clock fixpoint search. Standard zones
// converge in at most two steps; only contrived zones need more.
const maxResolveIterations = 5

var (
	// ErrInvalidWallClock reports a malformed or out-of-range input string.
	ErrInvalidWallClock = errors.New("invalid wall-clock time")
	// ErrNoConvergence reports that no instant renders as the requested
	// wall-clock time, e.g. a time skipped by a DST spring-forward.
	ErrNoConvergence = errors.New("wall-clock time does not exist in timezone")
)

// ParseLocalWallClock resolves input ("YYYY-MM-DDTHH:mm", interpreted in tz)
// to the UTC instant that renders as that wall-clock time.
//
// The resolver starts from a guess whose UTC fields equal the literal input,
// then repeatedly measures how far the guess renders from the target in tz
// and shifts by that offset. Re-evaluating the offset each step is what makes
// this correct across DST boundaries: the zone offset is a function of the
// instant, not a constant.
func ParseLocalWallClock(input, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	target, err := time.Parse(WallClockLayout, input)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q must match %s", ErrInvalidWallClock, input, WallClockLayout)
	}

	guess := target // literal fields read as UTC
	for i := 0; i < maxResolveIterations; i++ {
		offset := target.Sub(wallClockOf(guess, loc))
		if offset == 0 {
			return guess, nil
		}
		guess = guess.Add(offset)
	}

	return time.Time{}, fmt.Errorf("%w: %q in %s", ErrNoConvergence, input, tz)
}

// FormatAsLocal is the inverse of ParseLocalWallClock: a plain formatting
// call, no iteration needed.
func FormatAsLocal(instant time.Time, tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return instant.In(loc).Format(WallClockLayout), nil
}

// FormatDisplay renders a human-readable date and time in tz for UI and
// audit output. Falls back to UTC when the zone cannot be loaded.
func FormatDisplay(instant time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return instant.UTC().Format(DisplayLayout) + " UTC"
	}
	return instant.In(loc).Format(DisplayLayout)
}

// wallClockOf reprojects the wall-clock fields instant renders as in loc
// back onto a UTC timeline so offsets can be measured by subtraction.
func wallClockOf(instant time.Time, loc *time.Location) time.Time {
	local := instant.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), 0, 0, time.UTC)
}
