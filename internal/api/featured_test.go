/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/lutece_agenda/internal/audit"
	"github.com/friendsincode/lutece_agenda/internal/auth"
	"github.com/friendsincode/lutece_agenda/internal/backup"
	"github.com/friendsincode/lutece_agenda/internal/catalog"
	"github.com/friendsincode/lutece_agenda/internal/events"
	"github.com/friendsincode/lutece_agenda/internal/featured"
	"github.com/friendsincode/lutece_agenda/internal/localtime"
	"github.com/friendsincode/lutece_agenda/internal/models"
	"github.com/friendsincode/lutece_agenda/internal/storage"
	"github.com/friendsincode/lutece_agenda/internal/webhooks"
)

var testSecret = []byte("test-signing-key")

type testLocker struct {
	mu sync.Mutex
}

func (l *testLocker) WithLock(ctx context.Context, fn func(context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

func newTestRouter(t *testing.T) (*chi.Mux, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Event{}, &models.FeatureSchedule{}, &models.AuditEntry{}, &models.WebhookTarget{}, &models.WebhookLog{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	logger := zerolog.Nop()
	bus := events.NewBus()
	catalogSvc := catalog.NewService(db, nil, logger)
	featuredSvc, err := featured.NewService(featured.NewRepository(db), &testLocker{}, catalogSvc, bus, featured.Config{
		MaxConcurrent:        2,
		DefaultDurationHours: 48,
		Timezone:             "Europe/Paris",
	}, logger)
	if err != nil {
		t.Fatalf("featured service: %v", err)
	}
	auditSvc := audit.NewService(db, bus, logger)
	backupSvc := backup.NewService(featuredSvc, storage.NewFilesystemStore(t.TempDir(), logger), logger)
	webhookSvc := webhooks.NewService(db, bus, logger)

	router := chi.NewRouter()
	New(db, testSecret, featuredSvc, catalogSvc, auditSvc, backupSvc, webhookSvc, nil, logger).Routes(router)
	return router, db
}

func tokenWithRoles(t *testing.T, roles ...string) string {
	t.Helper()
	token, err := auth.Issue(testSecret, auth.Claims{UserID: "u1", Roles: roles}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestScheduleEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	token := tokenWithRoles(t, auth.RoleEditor)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/featured", token, scheduleRequest{
		EventKey:     "expo-lumiere",
		StartAtLocal: "2030-06-01T10:00",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Success bool                   `json:"success"`
		Data    models.FeatureSchedule `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if resp.Data.EffectiveStartAt == nil {
		t.Error("expected computed effective window in response")
	}
	if resp.Data.DurationHours != 48 {
		t.Errorf("duration = %d, want default 48", resp.Data.DurationHours)
	}
}

func TestScheduleEndpoint_Validation(t *testing.T) {
	router, _ := newTestRouter(t)
	token := tokenWithRoles(t, auth.RoleAdmin)

	tests := []struct {
		name     string
		body     scheduleRequest
		wantCode string
	}{
		{"missing event key", scheduleRequest{StartAtLocal: "2030-06-01T10:00"}, "event_key_required"},
		{"duration too long", scheduleRequest{EventKey: "e", DurationHours: 999}, "duration_out_of_range"},
		{"malformed start", scheduleRequest{EventKey: "e", StartAtLocal: "June 1st"}, "invalid_start_time"},
		{"nonexistent local time", scheduleRequest{EventKey: "e", StartAtLocal: "2025-03-30T02:30"}, "nonexistent_local_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/api/v1/featured", token, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
			}
			var resp apiResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Error != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestAuthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/api/v1/featured/queue", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", rr.Code)
	}

	viewer := tokenWithRoles(t)
	rr = doJSON(t, router, http.MethodPost, "/api/v1/featured", viewer, scheduleRequest{EventKey: "e"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("role-less token on mutation: expected 403, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/featured/queue", viewer, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("role-less token on queue view: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	editor := tokenWithRoles(t, auth.RoleEditor)
	rr = doJSON(t, router, http.MethodGet, "/api/v1/audit", editor, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("editor on audit: expected 403, got %d", rr.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	token := tokenWithRoles(t, auth.RoleEditor)

	rr := doJSON(t, router, http.MethodDelete, "/api/v1/featured/no-such-id", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/featured", token, scheduleRequest{
		EventKey:     "expo",
		StartAtLocal: "2030-06-01T10:00",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("schedule: expected 201, got %d", rr.Code)
	}
	var created struct {
		Data models.FeatureSchedule `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/featured/"+created.Data.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/featured/queue", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("queue: expected 200, got %d", rr.Code)
	}
	var items []featured.QueueItem
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(items) != 1 || items[0].State != featured.StateCancelled {
		t.Errorf("queue = %+v, want one cancelled item", items)
	}
}

func TestRescheduleEndpoint_CancelledConflict(t *testing.T) {
	router, _ := newTestRouter(t)
	token := tokenWithRoles(t, auth.RoleEditor)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/featured", token, scheduleRequest{
		EventKey:     "expo",
		StartAtLocal: "2030-06-01T10:00",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("schedule: expected 201, got %d", rr.Code)
	}
	var created struct {
		Data models.FeatureSchedule `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/featured/"+created.Data.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPut, "/api/v1/featured/"+created.Data.ID, token, rescheduleRequest{
		StartAtLocal: "2030-07-01T10:00",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("reschedule cancelled: expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp apiResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "not_reschedulable" {
		t.Errorf("error code = %q, want not_reschedulable", resp.Error)
	}
}

func TestClearEndpoint_InvalidScope(t *testing.T) {
	router, _ := newTestRouter(t)
	token := tokenWithRoles(t, auth.RoleAdmin)

	rr := doJSON(t, router, http.MethodDelete, "/api/v1/featured/queue?scope=everything", token, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPublicEventsEndpoint(t *testing.T) {
	router, db := newTestRouter(t)
	token := tokenWithRoles(t, auth.RoleEditor)

	event := models.Event{ID: "ev-1", EventKey: "expo", Name: "Exposition Lumière", Category: "exhibition"}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}

	// An already-running feature so the listing shows it as featured.
	startLocal, err := localtime.FormatAsLocal(time.Now().UTC().Add(-3*time.Hour), "Europe/Paris")
	if err != nil {
		t.Fatalf("format start: %v", err)
	}
	rr := doJSON(t, router, http.MethodPost, "/api/v1/featured", token, scheduleRequest{
		EventKey:     "expo",
		StartAtLocal: startLocal,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("schedule: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/events", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("events: expected 200, got %d", rr.Code)
	}
	var listed []models.Event
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("got %d events, want 1", len(listed))
	}
	if !listed[0].IsFeatured {
		t.Error("event not flagged as featured")
	}
}

func TestFeaturedCurrentEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	token := tokenWithRoles(t, auth.RoleEditor)

	// One running feature; the upcoming and recent-ended buckets stay empty.
	startLocal, err := localtime.FormatAsLocal(time.Now().UTC().Add(-3*time.Hour), "Europe/Paris")
	if err != nil {
		t.Fatalf("format start: %v", err)
	}
	rr := doJSON(t, router, http.MethodPost, "/api/v1/featured", token, scheduleRequest{
		EventKey:     "expo",
		StartAtLocal: startLocal,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("schedule: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/featured/current", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var projection struct {
		Active      []models.FeatureSchedule `json:"active"`
		Upcoming    []models.FeatureSchedule `json:"upcoming"`
		RecentEnded []models.FeatureSchedule `json:"recent_ended"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &projection); err != nil {
		t.Fatalf("decode projection: %v", err)
	}
	if len(projection.Active) != 1 || projection.Active[0].EventKey != "expo" {
		t.Errorf("active bucket = %+v, want the running feature", projection.Active)
	}

	// Empty buckets are arrays, not null, and keys are snake_case.
	body := rr.Body.String()
	for _, want := range []string{`"active":`, `"upcoming":[]`, `"recent_ended":[]`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := doJSON(t, router, http.MethodGet, "/api/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
