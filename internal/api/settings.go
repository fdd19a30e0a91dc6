package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/starterkit-core/internal/settings"
)

// sourceAPI is recorded as the audit source for changes made over HTTP.
const sourceAPI = "api"

// SetSettingRequest is the body of PUT /settings/{key}.
type SetSettingRequest struct {
	Value *string `json:"value"`
}

// UpdateSettingsRequest is the body of PUT /settings.
type UpdateSettingsRequest struct {
	Values map[settings.Key]string `json:"values"`
}

// ResetSettingResponse reports the outcome of DELETE /settings/{key}.
type ResetSettingResponse struct {
	Key     settings.Key `json:"key"`
	Removed bool         `json:"removed"`
	Value   string       `json:"value"`
}

// handleListSettings returns the effective value of every key.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	values, err := s.settings.Effective(r.Context())
	if err != nil {
		s.logger.Error("failed to list settings", "error", err)
		writeInternalError(w, "failed to list settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": values})
}

// handleListStoredSettings returns only the settings that have been stored.
func (s *Server) handleListStoredSettings(w http.ResponseWriter, r *http.Request) {
	stored, err := s.settings.All(r.Context())
	if err != nil {
		s.logger.Error("failed to list stored settings", "error", err)
		writeInternalError(w, "failed to list settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": stored})
}

// handleGetSetting returns the effective value of one key.
func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key, ok := s.keyParam(w, r)
	if !ok {
		return
	}

	v, err := s.settings.Get(r.Context(), key)
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleSetSetting stores one value.
func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key, ok := s.keyParam(w, r)
	if !ok {
		return
	}

	var req SetSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeValidationError(w, "value is required")
		return
	}

	st, err := s.settings.Set(r.Context(), key, *req.Value, sourceAPI)
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleUpdateSettings stores several values in one transaction.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Values) == 0 {
		writeValidationError(w, "values must not be empty")
		return
	}

	stored, err := s.settings.SetMany(r.Context(), req.Values, sourceAPI)
	if err != nil {
		if errors.Is(err, settings.ErrUnknownKey) {
			writeValidationError(w, err.Error())
			return
		}
		s.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": stored})
}

// handleResetSetting deletes the stored value so the default applies.
func (s *Server) handleResetSetting(w http.ResponseWriter, r *http.Request) {
	key, ok := s.keyParam(w, r)
	if !ok {
		return
	}

	removed, err := s.settings.Reset(r.Context(), key, sourceAPI)
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	def, _ := s.settings.Default(key)
	writeJSON(w, http.StatusOK, ResetSettingResponse{Key: key, Removed: removed, Value: def})
}

// keyParam resolves the {key} URL parameter, writing a 404 for unknown keys.
func (s *Server) keyParam(w http.ResponseWriter, r *http.Request) (settings.Key, bool) {
	key, err := settings.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		writeNotFound(w, err.Error())
		return "", false
	}
	return key, true
}

// writeSettingsError maps settings errors onto HTTP responses.
func (s *Server) writeSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settings.ErrUnknownKey):
		writeNotFound(w, err.Error())
	case errors.Is(err, settings.ErrInvalidValue):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("settings operation failed", "error", err)
		writeInternalError(w, "settings operation failed")
	}
}
