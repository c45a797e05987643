/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package localtime

import (
	"errors"
	"testing"
	"time"
)

const paris = "Europe/Paris"

func TestParseLocalWallClockWinter(t *testing.T) {
	// CET, UTC+1
	got, err := ParseLocalWallClock("2025-01-15T10:00", paris)
	if err != nil {
		t.Fatalf("ParseLocalWallClock returned error: %v", err)
	}
	want := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseLocalWallClockSummer(t *testing.T) {
	// CEST, UTC+2
	got, err := ParseLocalWallClock("2025-06-19T02:30", paris)
	if err != nil {
		t.Fatalf("ParseLocalWallClock returned error: %v", err)
	}
	want := time.Date(2025, 6, 19, 0, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRoundTripAcrossDST(t *testing.T) {
	inputs := []string{
		"2025-06-19T02:30",
		"2025-03-29T23:45", // night before spring-forward
		"2025-10-26T01:30", // morning of fall-back
		"2025-12-31T23:59",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			instant, err := ParseLocalWallClock(input, paris)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			back, err := FormatAsLocal(instant, paris)
			if err != nil {
				t.Fatalf("format: %v", err)
			}
			if back != input {
				t.Fatalf("round trip: got %q, want %q", back, input)
			}
		})
	}
}

func TestParseLocalWallClockNonexistentTime(t *testing.T) {
	// 02:30 on 2025-03-30 is skipped in Paris (02:00 -> 03:00)
	_, err := ParseLocalWallClock("2025-03-30T02:30", paris)
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("expected ErrNoConvergence, got %v", err)
	}
}

func TestParseLocalWallClockRejectsMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"2025-06-19",
		"2025-06-19 02:30",
		"2025-06-19T02:30:00",
		"2025-13-01T10:00",
		"2025-06-32T10:00",
		"2025-06-19T25:00",
		"2025-06-19T10:61",
		"19/06/2025 02:30",
	}
	for _, input := range inputs {
		if _, err := ParseLocalWallClock(input, paris); !errors.Is(err, ErrInvalidWallClock) {
			t.Errorf("input %q: expected ErrInvalidWallClock, got %v", input, err)
		}
	}
}

func TestParseLocalWallClockUnknownZone(t *testing.T) {
	if _, err := ParseLocalWallClock("2025-06-19T02:30", "Europe/NoSuchCity"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestFormatDisplay(t *testing.T) {
	instant := time.Date(2025, 6, 19, 0, 30, 0, 0, time.UTC)
	got := FormatDisplay(instant, paris)
	if got != "19 Jun 2025 02:30" {
		t.Fatalf("FormatDisplay = %q", got)
	}
}
