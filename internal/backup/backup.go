/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package backup snapshots the featured schedule to an object store and
// restores it back.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lutece_agenda/internal/models"
	"github.com/friendsincode/lutece_agenda/internal/storage"
)

const (
	snapshotVersion = 1
	keyPrefix       = "backups/"
	keyTimeLayout   = "20060102T150405Z"
)

// Snapshot is the serialized backup document.
type Snapshot struct {
	Version   int                      `json:"version"`
	CreatedAt time.Time                `json:"created_at"`
	Entries   []models.FeatureSchedule `json:"entries"`
}

// Schedule is the slice of the scheduling service the backup needs.
type Schedule interface {
	Snapshot(ctx context.Context) ([]models.FeatureSchedule, error)
	RestoreEntries(ctx context.Context, entries []models.FeatureSchedule, actor string) error
}

// Service writes and reads schedule snapshots.
type Service struct {
	schedule Schedule
	store    storage.ObjectStore
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a backup service.
func NewService(schedule Schedule, store storage.ObjectStore, logger zerolog.Logger) *Service {
	return &Service{
		schedule: schedule,
		store:    store,
		logger:   logger.With().Str("component", "backup").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Backup snapshots the schedule and uploads it. Returns the object key.
func (s *Service) Backup(ctx context.Context) (string, error) {
	entries, err := s.schedule.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot schedule: %w", err)
	}

	doc := Snapshot{
		Version:   snapshotVersion,
		CreatedAt: s.now(),
		Entries:   entries,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := keyPrefix + doc.CreatedAt.Format(keyTimeLayout) + ".json"
	if err := s.store.Put(ctx, key, data); err != nil {
		return "", err
	}

	s.logger.Info().Str("key", key).Int("entries", len(entries)).Msg("schedule backed up")
	return key, nil
}

// Restore downloads the snapshot at key and replaces the schedule with it.
func (s *Service) Restore(ctx context.Context, key, actor string) error {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}

	var doc Snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if doc.Version != snapshotVersion {
		return fmt.Errorf("snapshot %s has unsupported version %d", key, doc.Version)
	}

	if err := s.schedule.RestoreEntries(ctx, doc.Entries, actor); err != nil {
		return err
	}

	s.logger.Info().Str("key", key).Int("entries", len(doc.Entries)).Msg("schedule restored")
	return nil
}

// RestoreLatest restores the most recent snapshot in the store.
func (s *Service) RestoreLatest(ctx context.Context, actor string) (string, error) {
	keys, err := s.store.List(ctx, keyPrefix)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no snapshots found")
	}

	// Keys embed a sortable UTC timestamp, so the last one is the newest.
	key := keys[len(keys)-1]
	if err := s.Restore(ctx, key, actor); err != nil {
		return "", err
	}
	return key, nil
}
