/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/lutece_agenda/internal/featured"
	"github.com/friendsincode/lutece_agenda/internal/localtime"
)

type scheduleRequest struct {
	EventKey      string `json:"event_key"`
	StartAtLocal  string `json:"start_at_local"`
	DurationHours int    `json:"duration_hours"`
}

type rescheduleRequest struct {
	StartAtLocal  string `json:"start_at_local"`
	DurationHours int    `json:"duration_hours"`
}

func (a *API) handleFeaturedSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	entry, err := a.featured.Schedule(r.Context(), featured.ScheduleRequest{
		EventKey:      req.EventKey,
		StartAtLocal:  req.StartAtLocal,
		DurationHours: req.DurationHours,
		Actor:         actorFrom(r),
	})
	if err != nil {
		a.writeScheduleError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "feature scheduled", entry)
}

func (a *API) handleFeaturedReschedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	found, err := a.featured.Reschedule(r.Context(), id, req.StartAtLocal, req.DurationHours, actorFrom(r))
	if err != nil {
		a.writeScheduleError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	writeSuccess(w, http.StatusOK, "feature rescheduled", nil)
}

func (a *API) handleFeaturedCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := a.featured.Cancel(r.Context(), id, actorFrom(r))
	if err != nil {
		a.logger.Error().Err(err).Str("id", id).Msg("cancel failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	writeSuccess(w, http.StatusOK, "feature cancelled", nil)
}

func (a *API) handleFeaturedClear(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	ctx := r.Context()

	var count int64
	var err error
	scope := r.URL.Query().Get("scope")
	switch scope {
	case "", "all":
		count, err = a.featured.ClearQueueAndHistory(ctx, actor)
	case "queue":
		count, err = a.featured.ClearQueueOnly(ctx, actor)
	case "history":
		count, err = a.featured.ClearHistoryOnly(ctx, actor)
	default:
		writeError(w, http.StatusBadRequest, "invalid_scope")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("scope", scope).Msg("clear failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeSuccess(w, http.StatusOK, "schedule cleared", map[string]int64{"deleted": count})
}

func (a *API) handleFeaturedQueue(w http.ResponseWriter, r *http.Request) {
	items, err := a.featured.BuildQueueView(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("queue view failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleFeaturedProjection(w http.ResponseWriter, r *http.Request) {
	projection, err := a.featured.Projection(r.Context(), time.Now().UTC())
	if err != nil {
		a.logger.Error().Err(err).Msg("projection failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func (a *API) handleEventsList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = parsed
	}

	events, err := a.catalog.ListEvents(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("events list failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	decorated, err := a.featured.ApplyActiveToEvents(r.Context(), events)
	if err != nil {
		a.logger.Error().Err(err).Msg("featured decoration failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, decorated)
}

func (a *API) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, featured.ErrEventKeyRequired):
		writeError(w, http.StatusBadRequest, "event_key_required")
	case errors.Is(err, featured.ErrDurationOutOfRange):
		writeError(w, http.StatusBadRequest, "duration_out_of_range")
	case errors.Is(err, featured.ErrStartRequired):
		writeError(w, http.StatusBadRequest, "start_required")
	case errors.Is(err, featured.ErrNotReschedulable):
		writeError(w, http.StatusConflict, "not_reschedulable")
	case errors.Is(err, localtime.ErrNoConvergence):
		writeError(w, http.StatusBadRequest, "nonexistent_local_time")
	case errors.Is(err, localtime.ErrInvalidWallClock):
		writeError(w, http.StatusBadRequest, "invalid_start_time")
	default:
		a.logger.Error().Err(err).Msg("schedule operation failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
