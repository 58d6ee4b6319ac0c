package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tejasgit/zero-trust-agent/pkg/httpx"
	"github.com/tejasgit/zero-trust-agent/pkg/models"
	"github.com/tejasgit/zero-trust-agent/pkg/store"
	"github.com/tejasgit/zero-trust-agent/pkg/stream"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "request body too large") {
			httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		httpx.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// recordAudit appends the entry for a completed mutation. An append
// failure fails the request: the trail may not lag the tables.
func (s *Server) recordAudit(w http.ResponseWriter, r *http.Request, e models.AuditEntry) bool {
	e.Actor = actorFrom(r)
	if _, err := s.Audit.Append(r.Context(), e); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "audit append failed")
		return false
	}
	return true
}

func (s *Server) publish(eventType string, data any) {
	if s.Events != nil {
		s.Events.Publish(stream.NewEvent(eventType, data))
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrInvalidRule), errors.Is(err, models.ErrInvalidTransition):
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		httpx.Error(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := s.Store.ListIncidents(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, incidents)
}

func (s *Server) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.Store.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inc)
}

func (s *Server) createIncident(w http.ResponseWriter, r *http.Request) {
	var inc models.Incident
	if !decodeJSON(w, r, &inc) {
		return
	}
	if strings.TrimSpace(inc.Title) == "" {
		httpx.Error(w, http.StatusUnprocessableEntity, "title required")
		return
	}
	saved, err := s.Store.CreateIncident(r.Context(), inc)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		IncidentID: saved.ID,
		Action:     "incident_created",
		Detail:     fmt.Sprintf("incident %q created manually", saved.Title),
	}) {
		return
	}
	s.publish(stream.EventIncidentChanged, saved)
	httpx.WriteJSON(w, http.StatusCreated, saved)
}

func (s *Server) patchIncident(w http.ResponseWriter, r *http.Request) {
	var patch models.IncidentPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	id := chi.URLParam(r, "id")
	saved, err := s.Store.UpdateIncident(r.Context(), id, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	detail := "incident updated"
	if patch.Status != nil {
		detail = fmt.Sprintf("status changed to %s", *patch.Status)
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		IncidentID: saved.ID,
		Action:     "incident_updated",
		Detail:     detail,
	}) {
		return
	}
	s.publish(stream.EventIncidentChanged, saved)
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteIncident(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	// The audit trail keeps the dangling incident id on purpose.
	if !s.recordAudit(w, r, models.AuditEntry{
		IncidentID: id,
		Action:     "incident_deleted",
		Detail:     "incident deleted",
	}) {
		return
	}
	s.publish(stream.EventIncidentChanged, map[string]string{"id": id, "deleted": "true"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries, err := s.Audit.List(r.Context(), limit)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) incidentAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Audit.ListByIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Store.GetSettings(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cfg)
}

func (s *Server) patchSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	cfg, err := s.Store.UpdateSettings(r.Context(), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "settings_updated",
		Detail: fmt.Sprintf("maturity=%d autoEscalation=%t mimGating=%t threshold=%.2f dedup=%ds",
			cfg.MaturityLevel, cfg.AutoEscalation, cfg.MimGating, cfg.ConfidenceThreshold, cfg.DeduplicationWindow),
	}) {
		return
	}
	s.publish(stream.EventSettingsChanged, cfg)
	httpx.WriteJSON(w, http.StatusOK, cfg)
}
