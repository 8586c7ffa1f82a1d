package api

import (
	"net/http"

	"github.com/google/uuid"
)

// GetSession возвращает сегмент сессии с журналом шагов.
// GET /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		Unavailable(w, "session log is not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return
	}

	session, err := h.sessions.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "session not found") {
		return
	}

	steps, err := h.sessions.ListSteps(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, SessionFromDomain(*session, steps))
}

// StreamProgress открывает websocket с событиями прогресса.
// GET /api/v1/progress?session_id=...
//
// Без session_id клиент получает события всех сессий.
func (h *Handler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		Unavailable(w, "progress stream is not configured")
		return
	}

	var sessionID uuid.UUID
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid session_id")
			return
		}
		sessionID = id
	}

	if err := h.stream.ServeWS(w, r, sessionID); err != nil {
		h.logger.Warn("progress stream upgrade failed", "error", err)
	}
}
