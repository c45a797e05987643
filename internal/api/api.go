/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lutece_agenda/internal/audit"
	"github.com/friendsincode/lutece_agenda/internal/auth"
	"github.com/friendsincode/lutece_agenda/internal/backup"
	"github.com/friendsincode/lutece_agenda/internal/catalog"
	"github.com/friendsincode/lutece_agenda/internal/featured"
	"github.com/friendsincode/lutece_agenda/internal/version"
	"github.com/friendsincode/lutece_agenda/internal/webhooks"
)

// API exposes HTTP handlers.
type API struct {
	db          *gorm.DB
	jwtSecret   []byte
	featured    *featured.Service
	catalog     *catalog.Service
	auditSvc    *audit.Service
	backupSvc   *backup.Service
	webhookSvc  *webhooks.Service
	updateCheck *version.Checker
	logger      zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, featuredSvc *featured.Service, catalogSvc *catalog.Service, auditSvc *audit.Service, backupSvc *backup.Service, webhookSvc *webhooks.Service, updateCheck *version.Checker, logger zerolog.Logger) *API {
	return &API{
		db:          db,
		jwtSecret:   jwtSecret,
		featured:    featuredSvc,
		catalog:     catalogSvc,
		auditSvc:    auditSvc,
		backupSvc:   backupSvc,
		webhookSvc:  webhookSvc,
		updateCheck: updateCheck,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all endpoints on the given router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public endpoints (no auth required)
		r.Get("/events", a.handleEventsList)
		r.Get("/featured/current", a.handleFeaturedProjection)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			editors := a.requireRoles(auth.RoleAdmin, auth.RoleEditor)
			admins := a.requireRoles(auth.RoleAdmin)

			pr.Get("/featured/queue", a.handleFeaturedQueue)
			pr.With(editors).Post("/featured", a.handleFeaturedSchedule)
			pr.With(editors).Delete("/featured/queue", a.handleFeaturedClear)
			pr.With(editors).Put("/featured/{id}", a.handleFeaturedReschedule)
			pr.With(editors).Delete("/featured/{id}", a.handleFeaturedCancel)

			pr.With(admins).Get("/audit", a.handleAuditList)
			pr.With(admins).Post("/backups", a.handleBackupCreate)
			pr.With(admins).Post("/backups/restore", a.handleBackupRestore)

			pr.With(admins).Get("/webhooks", a.handleWebhookList)
			pr.With(admins).Post("/webhooks", a.handleWebhookCreate)
			pr.With(admins).Delete("/webhooks/{id}", a.handleWebhookDelete)
			pr.With(admins).Post("/webhooks/{id}/test", a.handleWebhookTest)

			pr.With(admins).Get("/version", a.handleVersion)
		})
	})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.Middleware(a.jwtSecret)
}

func (a *API) requireRoles(allowed ...string) func(http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range claims.Roles {
				if _, exists := allowedSet[role]; exists {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient_role")
		})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actorFrom returns the acting user id for audit payloads.
func actorFrom(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.UserID
	}
	return ""
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, apiResponse{Success: false, Error: code})
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, apiResponse{Success: true, Message: message, Data: data})
}
