package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/lutece_agenda/internal/events"
	"github.com/friendsincode/lutece_agenda/internal/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.WebhookTarget{}, &models.WebhookLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return NewService(db, events.NewBus(), zerolog.Nop()), db
}

func TestTargetHandlesEvent(t *testing.T) {
	tests := []struct {
		name   string
		events string
		event  string
		want   bool
	}{
		{"empty subscribes to all", "", "featured.scheduled", true},
		{"exact match", "featured.scheduled", "featured.scheduled", true},
		{"list match with spaces", "featured.cancelled, featured.scheduled", "featured.scheduled", true},
		{"no match", "featured.cancelled", "featured.scheduled", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := models.WebhookTarget{Events: tt.events}
			if got := targetHandlesEvent(target, tt.event); got != tt.want {
				t.Errorf("targetHandlesEvent(%q, %q) = %v, want %v", tt.events, tt.event, got, tt.want)
			}
		})
	}
}

func TestSendDeliversSignedPayload(t *testing.T) {
	svc, db := newTestService(t)

	var gotBody []byte
	var gotSig, gotEvent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Lutece-Signature")
		gotEvent = r.Header.Get("X-Lutece-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	target := models.WebhookTarget{
		ID:     "wh-1",
		URL:    server.URL,
		Secret: "hunter2",
		Active: true,
	}

	doc := Payload{
		Event:     string(events.EventFeatureScheduled),
		Timestamp: time.Now().UTC(),
		EntryID:   "entry-1",
		EventKey:  "expo-picasso",
		Actor:     "admin@example.com",
	}
	svc.send(context.Background(), target, doc)

	if gotEvent != "featured.scheduled" {
		t.Errorf("X-Lutece-Event = %q", gotEvent)
	}

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature mismatch: got %q want %q", gotSig, want)
	}

	var decoded Payload
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("unmarshal delivered payload: %v", err)
	}
	if decoded.EventKey != "expo-picasso" || decoded.EntryID != "entry-1" {
		t.Errorf("unexpected payload: %+v", decoded)
	}

	var logs []models.WebhookLog
	if err := db.Find(&logs).Error; err != nil {
		t.Fatalf("load delivery log: %v", err)
	}
	if len(logs) != 1 || logs[0].StatusCode != http.StatusOK || logs[0].TargetID != "wh-1" {
		t.Errorf("unexpected delivery log: %+v", logs)
	}
}

func TestCreateRequiresURL(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.Create(context.Background(), &models.WebhookTarget{Name: "no url"}); err == nil {
		t.Error("expected error for target without URL")
	}
}

func TestDeleteUnknownTarget(t *testing.T) {
	svc, _ := newTestService(t)

	found, err := svc.Delete(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if found {
		t.Error("Delete reported success for unknown id")
	}
}

func TestBuildPayloadSplitsKnownFields(t *testing.T) {
	doc := buildPayload("featured.rescheduled", events.Payload{
		"id":        "entry-2",
		"event_key": "nuit-blanche",
		"actor":     "editor@example.com",
		"duration":  24,
	})

	if doc.EntryID != "entry-2" || doc.EventKey != "nuit-blanche" || doc.Actor != "editor@example.com" {
		t.Errorf("known fields not extracted: %+v", doc)
	}
	if doc.Detail["duration"] != 24 {
		t.Errorf("detail missing extra field: %+v", doc.Detail)
	}
	if _, ok := doc.Detail["id"]; ok {
		t.Error("id should not be duplicated into detail")
	}
}
