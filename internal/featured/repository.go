/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package featured

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/lutece_agenda/internal/allocator"
	"github.com/friendsincode/lutece_agenda/internal/models"
)

// Repository is the narrow persistence contract the scheduling service
// depends on. The production implementation is gorm-backed; tests may supply
// an in-memory database behind the same interface.
type Repository interface {
	// List returns entries, optionally filtered by status, in a stable order.
	List(ctx context.Context, statuses ...models.FeatureStatus) ([]models.FeatureSchedule, error)
	// Get returns the entry with id, or nil when absent.
	Get(ctx context.Context, id string) (*models.FeatureSchedule, error)
	// Create persists a new entry.
	Create(ctx context.Context, entry *models.FeatureSchedule) error
	// Cancel flips an entry to cancelled and clears its window. Reports
	// whether an entry with id existed.
	Cancel(ctx context.Context, id string) (bool, error)
	// Reschedule updates the two operator-mutable fields. Reports whether an
	// entry with id existed.
	Reschedule(ctx context.Context, id string, requestedStartAt time.Time, durationHours int) (bool, error)
	// UpdateWindows persists allocator output in a single transaction;
	// partial window writes are never committed.
	UpdateWindows(ctx context.Context, windows map[string]allocator.Window) error
	// MarkCompleted promotes scheduled entries whose window fully elapsed.
	MarkCompleted(ctx context.Context, now time.Time) (int64, error)
	// ReviveZeroDuration returns completed entries with a degenerate window
	// to the scheduled pool so the next allocation repairs them.
	ReviveZeroDuration(ctx context.Context) (int64, error)
	// ClearByStatus deletes entries in the given statuses and returns the count.
	ClearByStatus(ctx context.Context, statuses ...models.FeatureStatus) (int64, error)
	// ReplaceAll swaps the entire entry set atomically (restore path).
	ReplaceAll(ctx context.Context, entries []models.FeatureSchedule) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns the gorm-backed schedule repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) List(ctx context.Context, statuses ...models.FeatureStatus) ([]models.FeatureSchedule, error) {
	query := r.db.WithContext(ctx).Model(&models.FeatureSchedule{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var entries []models.FeatureSchedule
	if err := query.Order("requested_start_at ASC, created_at ASC, event_key ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list feature schedules: %w", err)
	}
	return entries, nil
}

func (r *gormRepository) Get(ctx context.Context, id string) (*models.FeatureSchedule, error) {
	var entry models.FeatureSchedule
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feature schedule %s: %w", id, err)
	}
	return &entry, nil
}

func (r *gormRepository) Create(ctx context.Context, entry *models.FeatureSchedule) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create feature schedule: %w", err)
	}
	return nil
}

func (r *gormRepository) Cancel(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FeatureSchedule{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             models.FeatureStatusCancelled,
			"effective_start_at": nil,
			"effective_end_at":   nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("cancel feature schedule %s: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) Reschedule(ctx context.Context, id string, requestedStartAt time.Time, durationHours int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FeatureSchedule{}).
		Where("id = ? AND status = ?", id, models.FeatureStatusScheduled).
		Updates(map[string]any{
			"requested_start_at": requestedStartAt,
			"duration_hours":     durationHours,
		})
	if result.Error != nil {
		return false, fmt.Errorf("reschedule feature schedule %s: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) UpdateWindows(ctx context.Context, windows map[string]allocator.Window) error {
	if len(windows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, w := range windows {
			result := tx.Model(&models.FeatureSchedule{}).
				Where("id = ?", id).
				Updates(map[string]any{
					"effective_start_at": w.StartsAt,
					"effective_end_at":   w.EndsAt,
				})
			if result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update computed windows: %w", err)
	}
	return nil
}

func (r *gormRepository) MarkCompleted(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FeatureSchedule{}).
		Where("status = ? AND effective_end_at IS NOT NULL AND effective_end_at <= ?", models.FeatureStatusScheduled, now).
		Update("status", models.FeatureStatusCompleted)
	if result.Error != nil {
		return 0, fmt.Errorf("mark completed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormRepository) ReviveZeroDuration(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FeatureSchedule{}).
		Where("status = ? AND effective_start_at IS NOT NULL AND effective_end_at IS NOT NULL AND effective_end_at <= effective_start_at", models.FeatureStatusCompleted).
		Update("status", models.FeatureStatusScheduled)
	if result.Error != nil {
		return 0, fmt.Errorf("revive zero-duration entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormRepository) ClearByStatus(ctx context.Context, statuses ...models.FeatureStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Delete(&models.FeatureSchedule{})
	if result.Error != nil {
		return 0, fmt.Errorf("clear feature schedules: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormRepository) ReplaceAll(ctx context.Context, entries []models.FeatureSchedule) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.FeatureSchedule{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return fmt.Errorf("replace feature schedules: %w", err)
	}
	return nil
}
