/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"io"
	"net/http"
)

type restoreRequest struct {
	Key string `json:"key"`
}

func (a *API) handleBackupCreate(w http.ResponseWriter, r *http.Request) {
	key, err := a.backupSvc.Backup(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("backup failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeSuccess(w, http.StatusCreated, "backup created", map[string]string{"key": key})
}

func (a *API) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	actor := actorFrom(r)
	key := req.Key
	var err error
	if key == "" {
		key, err = a.backupSvc.RestoreLatest(r.Context(), actor)
	} else {
		err = a.backupSvc.Restore(r.Context(), key, actor)
	}
	if err != nil {
		a.logger.Error().Err(err).Str("key", key).Msg("restore failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeSuccess(w, http.StatusOK, "schedule restored", map[string]string{"key": key})
}
