/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/lutece_agenda/internal/models"
	"github.com/friendsincode/lutece_agenda/internal/version"
)

func (a *API) handleWebhookList(w http.ResponseWriter, r *http.Request) {
	targets, err := a.webhookSvc.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to list webhooks")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeSuccess(w, http.StatusOK, "", targets)
}

type webhookCreateRequest struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Secret string `json:"secret"`
	Events string `json:"events"`
}

func (a *API) handleWebhookCreate(w http.ResponseWriter, r *http.Request) {
	var req webhookCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url_required")
		return
	}

	target := &models.WebhookTarget{
		Name:   req.Name,
		URL:    req.URL,
		Secret: req.Secret,
		Events: req.Events,
		Active: true,
	}
	if err := a.webhookSvc.Create(r.Context(), target); err != nil {
		a.logger.Error().Err(err).Msg("failed to create webhook")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeSuccess(w, http.StatusCreated, "webhook registered", target)
}

func (a *API) handleWebhookDelete(w http.ResponseWriter, r *http.Request) {
	found, err := a.webhookSvc.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to delete webhook")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeSuccess(w, http.StatusOK, "webhook deleted", nil)
}

func (a *API) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	if err := a.webhookSvc.Test(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusBadGateway, "delivery_failed")
		return
	}
	writeSuccess(w, http.StatusOK, "test delivered", nil)
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if a.updateCheck == nil {
		writeSuccess(w, http.StatusOK, "", version.UpdateInfo{CurrentVersion: version.Version})
		return
	}
	writeSuccess(w, http.StatusOK, "", a.updateCheck.Info())
}
