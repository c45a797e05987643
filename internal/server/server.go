/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lutece_agenda/internal/api"
	"github.com/friendsincode/lutece_agenda/internal/audit"
	"github.com/friendsincode/lutece_agenda/internal/backup"
	"github.com/friendsincode/lutece_agenda/internal/cache"
	"github.com/friendsincode/lutece_agenda/internal/catalog"
	"github.com/friendsincode/lutece_agenda/internal/config"
	"github.com/friendsincode/lutece_agenda/internal/db"
	"github.com/friendsincode/lutece_agenda/internal/events"
	"github.com/friendsincode/lutece_agenda/internal/featured"
	"github.com/friendsincode/lutece_agenda/internal/schedlock"
	"github.com/friendsincode/lutece_agenda/internal/storage"
	"github.com/friendsincode/lutece_agenda/internal/telemetry"
	"github.com/friendsincode/lutece_agenda/internal/version"
	"github.com/friendsincode/lutece_agenda/internal/webhooks"
)

// Server bundles the HTTP API and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db          *gorm.DB
	redisClient *redis.Client
	bus         *events.Bus
	featuredSvc *featured.Service
	catalogSvc  *catalog.Service
	auditSvc    *audit.Service
	backupSvc   *backup.Service
	webhookSvc  *webhooks.Service
	updateCheck *version.Checker
	api         *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("lutece-agenda-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Redis schedule lock. A reachable Redis is a hard startup dependency:
	// concurrent admin actions on two instances must never run the
	// allocator at the same time.
	s.redisClient = redis.NewClient(&redis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	s.DeferClose(func() error { return s.redisClient.Close() })

	locker, err := schedlock.NewRedisLocker(s.redisClient, s.logger)
	if err != nil {
		return err
	}

	s.bus = events.NewBus()
	s.catalogSvc = catalog.NewService(database, cache.New(s.redisClient, cache.DefaultConfig(), s.logger), s.logger)

	s.featuredSvc, err = featured.NewService(
		featured.NewRepository(database),
		locker,
		s.catalogSvc,
		s.bus,
		featured.Config{
			MaxConcurrent:        s.cfg.FeaturedMaxConcurrent,
			DefaultDurationHours: s.cfg.FeaturedDefaultDurationHours,
			Timezone:             s.cfg.Timezone,
			RecentEndedWindow:    s.cfg.FeaturedRecentEndedWindow,
			SweepInterval:        s.cfg.SweepInterval,
		},
		s.logger,
	)
	if err != nil {
		return err
	}

	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	store, err := s.newBackupStore()
	if err != nil {
		return err
	}
	s.backupSvc = backup.NewService(s.featuredSvc, store, s.logger)
	s.webhookSvc = webhooks.NewService(database, s.bus, s.logger)
	s.updateCheck = version.NewChecker(s.logger)

	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), s.featuredSvc, s.catalogSvc, s.auditSvc, s.backupSvc, s.webhookSvc, s.updateCheck, s.logger)
	return nil
}

func (s *Server) newBackupStore() (storage.ObjectStore, error) {
	switch s.cfg.BackupBackend {
	case config.BackupS3:
		return storage.NewS3Store(context.Background(), storage.S3Config{
			Endpoint:  s.cfg.S3Endpoint,
			Region:    s.cfg.S3Region,
			Bucket:    s.cfg.S3Bucket,
			AccessKey: s.cfg.S3AccessKeyID,
			SecretKey: s.cfg.S3SecretAccessKey,
		}, s.logger)
	default:
		return storage.NewFilesystemStore(s.cfg.BackupDir, s.logger), nil
	}
}

func (s *Server) configureRoutes() {
	s.router.Handle("/metrics", telemetry.Handler())
	s.api.Routes(s.router)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.featuredSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("sweep loop exited")
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.webhookSvc.Start(ctx)
	}()

	s.updateCheck.Start(ctx)
	s.DeferClose(func() error {
		s.updateCheck.Stop()
		return nil
	})

	// Database connection pool metrics updater.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()
}

// Router returns the HTTP router, for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// HTTPServer returns the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
