/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks delivers featured schedule change notifications to
// registered HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lutece_agenda/internal/events"
	"github.com/friendsincode/lutece_agenda/internal/models"
)

// Payload is the document POSTed to webhook endpoints.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	EntryID   string         `json:"entry_id,omitempty"`
	EventKey  string         `json:"event_key,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Service handles webhook delivery.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
}

// NewService creates a new webhook service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Start listens for schedule events and delivers them until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	scheduled := s.bus.Subscribe(events.EventFeatureScheduled)
	cancelled := s.bus.Subscribe(events.EventFeatureCancelled)
	rescheduled := s.bus.Subscribe(events.EventFeatureRescheduled)
	cleared := s.bus.Subscribe(events.EventFeatureCleared)
	restored := s.bus.Subscribe(events.EventFeatureRestored)

	defer func() {
		s.bus.Unsubscribe(events.EventFeatureScheduled, scheduled)
		s.bus.Unsubscribe(events.EventFeatureCancelled, cancelled)
		s.bus.Unsubscribe(events.EventFeatureRescheduled, rescheduled)
		s.bus.Unsubscribe(events.EventFeatureCleared, cleared)
		s.bus.Unsubscribe(events.EventFeatureRestored, restored)
	}()

	s.logger.Info().Msg("webhook service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return
		case payload := <-scheduled:
			s.fire(ctx, string(events.EventFeatureScheduled), payload)
		case payload := <-cancelled:
			s.fire(ctx, string(events.EventFeatureCancelled), payload)
		case payload := <-rescheduled:
			s.fire(ctx, string(events.EventFeatureRescheduled), payload)
		case payload := <-cleared:
			s.fire(ctx, string(events.EventFeatureCleared), payload)
		case payload := <-restored:
			s.fire(ctx, string(events.EventFeatureRestored), payload)
		}
	}
}

// fire delivers an event to every active target subscribed to it.
func (s *Service) fire(ctx context.Context, eventType string, busPayload events.Payload) {
	var targets []models.WebhookTarget
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&targets).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch webhook targets")
		return
	}

	doc := buildPayload(eventType, busPayload)

	for _, target := range targets {
		if !targetHandlesEvent(target, eventType) {
			continue
		}
		go s.send(ctx, target, doc)
	}
}

func buildPayload(eventType string, busPayload events.Payload) Payload {
	doc := Payload{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		Detail:    make(map[string]any),
	}
	for k, v := range busPayload {
		switch k {
		case "id":
			doc.EntryID, _ = v.(string)
		case "event_key":
			doc.EventKey, _ = v.(string)
		case "actor":
			doc.Actor, _ = v.(string)
		default:
			doc.Detail[k] = v
		}
	}
	return doc
}

// targetHandlesEvent checks a target's comma-separated subscription list.
func targetHandlesEvent(target models.WebhookTarget, eventType string) bool {
	if target.Events == "" {
		return true
	}
	for _, e := range strings.Split(target.Events, ",") {
		if strings.TrimSpace(e) == eventType {
			return true
		}
	}
	return false
}

// send delivers a single webhook request and records the attempt.
func (s *Service) send(ctx context.Context, target models.WebhookTarget, doc Payload) {
	body, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Msg("failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Msg("failed to create webhook request")
		s.logDelivery(target, doc.Event, 0, err.Error())
		return
	}
	s.setHeaders(req, doc.Event, body, target.Secret)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Str("url", target.URL).Msg("webhook delivery failed")
		s.logDelivery(target, doc.Event, 0, err.Error())
		return
	}
	defer resp.Body.Close()

	s.logDelivery(target, doc.Event, resp.StatusCode, "")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug().Str("webhook", target.ID).Str("event", doc.Event).Int("status", resp.StatusCode).Msg("webhook delivered")
	} else {
		s.logger.Warn().Str("webhook", target.ID).Str("event", doc.Event).Int("status", resp.StatusCode).Msg("webhook returned error status")
	}
}

func (s *Service) setHeaders(req *http.Request, eventType string, body []byte, secret string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Lutece-Agenda-Webhook/1.0")
	req.Header.Set("X-Lutece-Event", eventType)
	req.Header.Set("X-Lutece-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))

	if secret != "" {
		req.Header.Set("X-Lutece-Signature", signPayload(body, secret))
	}
}

// signPayload creates an HMAC-SHA256 signature.
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func (s *Service) logDelivery(target models.WebhookTarget, eventType string, statusCode int, errorMsg string) {
	entry := &models.WebhookLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      eventType,
		StatusCode: statusCode,
		Error:      errorMsg,
	}
	if err := s.db.Create(entry).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log webhook delivery")
	}
}

// List returns all webhook targets.
func (s *Service) List(ctx context.Context) ([]models.WebhookTarget, error) {
	var targets []models.WebhookTarget
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("list webhook targets: %w", err)
	}
	return targets, nil
}

// Create registers a new webhook target.
func (s *Service) Create(ctx context.Context, target *models.WebhookTarget) error {
	if target.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if target.ID == "" {
		target.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(target).Error; err != nil {
		return fmt.Errorf("create webhook target: %w", err)
	}
	s.logger.Info().Str("webhook", target.ID).Str("url", target.URL).Msg("webhook target registered")
	return nil
}

// Delete removes a webhook target. Returns false when the id is unknown.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.WebhookTarget{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("delete webhook target: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Test sends a test payload to a webhook target.
func (s *Service) Test(ctx context.Context, id string) error {
	var target models.WebhookTarget
	if err := s.db.WithContext(ctx).First(&target, "id = ?", id).Error; err != nil {
		return fmt.Errorf("load webhook target: %w", err)
	}

	doc := Payload{
		Event:     "test",
		Timestamp: time.Now().UTC(),
		EventKey:  "test-event",
		Actor:     "webhook-test",
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req, "test", body, target.Secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
