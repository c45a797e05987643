/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/lutece_agenda/internal/models"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Backup backend selection.
type BackupBackend string

const (
	BackupFilesystem BackupBackend = "fs"
	BackupS3         BackupBackend = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string
	DBBackend   DatabaseBackend
	DBDSN       string

	JWTSigningKey string

	// Featured slot settings
	Timezone                     string
	FeaturedMaxConcurrent        int
	FeaturedDefaultDurationHours int
	FeaturedRecentEndedWindow    time.Duration
	SweepInterval                time.Duration

	// Schedule lock (Redis). Required: a reachable Redis is a hard startup
	// dependency, not an optional optimization.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InstanceID    string

	// Backup configuration
	BackupBackend BackupBackend
	BackupDir     string

	// S3 backup storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("LUTECE_ENV", "development"),
		HTTPBind:    getEnv("LUTECE_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("LUTECE_HTTP_PORT", 8080),
		BaseURL:     getEnv("LUTECE_BASE_URL", ""),
		DBBackend:   DatabaseBackend(getEnv("LUTECE_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:       getEnv("LUTECE_DB_DSN", ""),

		JWTSigningKey: getEnv("LUTECE_JWT_SIGNING_KEY", ""),

		Timezone:                     getEnv("LUTECE_TIMEZONE", "Europe/Paris"),
		FeaturedMaxConcurrent:        getEnvInt("LUTECE_FEATURED_MAX_CONCURRENT", 3),
		FeaturedDefaultDurationHours: getEnvInt("LUTECE_FEATURED_DEFAULT_DURATION_HOURS", 48),
		FeaturedRecentEndedWindow:    time.Duration(getEnvInt("LUTECE_FEATURED_RECENT_ENDED_HOURS", 48)) * time.Hour,
		SweepInterval:                time.Duration(getEnvInt("LUTECE_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,

		RedisAddr:     getEnv("LUTECE_REDIS_ADDR", ""),
		RedisPassword: getEnv("LUTECE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("LUTECE_REDIS_DB", 0),
		InstanceID:    getEnv("LUTECE_INSTANCE_ID", ""),

		BackupBackend: BackupBackend(getEnv("LUTECE_BACKUP_BACKEND", string(BackupFilesystem))),
		BackupDir:     getEnv("LUTECE_BACKUP_DIR", "./backups"),

		S3AccessKeyID:     getEnvAny([]string{"LUTECE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"LUTECE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"LUTECE_S3_REGION", "AWS_REGION"}, "eu-west-3"),
		S3Bucket:          getEnvAny([]string{"LUTECE_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"LUTECE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),

		TracingEnabled:    getEnvBool("LUTECE_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("LUTECE_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("LUTECE_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("LUTECE_DB_DSN must be provided")
	}
	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("LUTECE_JWT_SIGNING_KEY must be provided")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("LUTECE_REDIS_ADDR must be provided; the featured scheduler requires Redis for schedule locking")
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("LUTECE_TIMEZONE %q is not a valid IANA zone: %w", cfg.Timezone, err)
	}

	if cfg.FeaturedMaxConcurrent < 1 {
		return nil, fmt.Errorf("LUTECE_FEATURED_MAX_CONCURRENT must be at least 1")
	}
	if cfg.FeaturedDefaultDurationHours < models.MinDurationHours || cfg.FeaturedDefaultDurationHours > models.MaxDurationHours {
		return nil, fmt.Errorf("LUTECE_FEATURED_DEFAULT_DURATION_HOURS must be between %d and %d", models.MinDurationHours, models.MaxDurationHours)
	}

	switch cfg.BackupBackend {
	case BackupFilesystem:
	case BackupS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("LUTECE_S3_BUCKET must be provided when the s3 backup backend is selected")
		}
	default:
		return nil, fmt.Errorf("unsupported backup backend %q", cfg.BackupBackend)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if len(cfg.JWTSigningKey) < 32 {
			return nil, fmt.Errorf("LUTECE_JWT_SIGNING_KEY must be at least 32 bytes in production")
		}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}
