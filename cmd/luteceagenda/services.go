/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/friendsincode/lutece_agenda/internal/backup"
	"github.com/friendsincode/lutece_agenda/internal/config"
	"github.com/friendsincode/lutece_agenda/internal/db"
	"github.com/friendsincode/lutece_agenda/internal/featured"
	"github.com/friendsincode/lutece_agenda/internal/schedlock"
	"github.com/friendsincode/lutece_agenda/internal/storage"
)

// scheduleServices is the minimal wiring the maintenance commands need,
// without the HTTP server or background workers.
type scheduleServices struct {
	featured *featured.Service
	backup   *backup.Service
	close    func()
}

func newScheduleServices() (*scheduleServices, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	cleanup := func() {
		_ = redisClient.Close()
		_ = db.Close(database)
	}

	locker, err := schedlock.NewRedisLocker(redisClient, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	featuredSvc, err := featured.NewService(featured.NewRepository(database), locker, nil, nil, featured.Config{
		MaxConcurrent:        cfg.FeaturedMaxConcurrent,
		DefaultDurationHours: cfg.FeaturedDefaultDurationHours,
		Timezone:             cfg.Timezone,
		RecentEndedWindow:    cfg.FeaturedRecentEndedWindow,
		SweepInterval:        cfg.SweepInterval,
	}, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	var store storage.ObjectStore
	if cfg.BackupBackend == config.BackupS3 {
		store, err = storage.NewS3Store(context.Background(), storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKeyID,
			SecretKey: cfg.S3SecretAccessKey,
		}, logger)
		if err != nil {
			cleanup()
			return nil, err
		}
	} else {
		store = storage.NewFilesystemStore(cfg.BackupDir, logger)
	}

	return &scheduleServices{
		featured: featuredSvc,
		backup:   backup.NewService(featuredSvc, store, logger),
		close:    cleanup,
	}, nil
}
