package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GTFB/forlifely-sub004/internal/shared/database"
	"github.com/GTFB/forlifely-sub004/internal/shared/models"
)

func decodeJSON(r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	return json.NewDecoder(r.Body).Decode(v)
}

// HandleStatus handles GET /status/{requestID}. The lookup is scoped to
// the caller's own account; a request id with no journal row yet reads as
// still processing.
func (h *AskHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	acct, ok := AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "requestId is required")
		return
	}

	rec, err := h.journal.GetJournal(r.Context(), requestID, acct.ID)
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "PENDING",
			"message": "request is still processing",
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "journal lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    rec.Status,
		"createdAt": rec.CreatedAt.Format(time.RFC3339),
		"message":   statusMessage(rec.Status),
	})
}

func statusMessage(status string) string {
	if status == models.StatusSuccess {
		return "request completed"
	}
	return "request failed"
}

// HandleResult handles GET /result/{requestID}: the full journal payload,
// again scoped to the caller's own account.
func (h *AskHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	acct, ok := AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "requestId is required")
		return
	}

	rec, err := h.journal.GetJournal(r.Context(), requestID, acct.ID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "journal lookup failed")
		return
	}

	body := map[string]any{
		"requestId": rec.RequestID,
		"status":    rec.Status,
		"model":     rec.Model,
		"provider":  rec.Provider,
		"content":   rec.Content,
		"costUsd":   rec.CostUSD,
		"createdAt": rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ErrorMessage != nil {
		body["error"] = *rec.ErrorMessage
	}
	writeJSON(w, http.StatusOK, body)
}

// HandleKeysStatus handles GET /keys/status: per-provider credential pool
// introspection.
func (h *AskHandler) HandleKeysStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := AccountFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, h.keys.Snapshot())
}
