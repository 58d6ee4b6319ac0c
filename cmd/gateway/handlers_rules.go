package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tejasgit/zero-trust-agent/pkg/httpx"
	"github.com/tejasgit/zero-trust-agent/pkg/models"
	"github.com/tejasgit/zero-trust-agent/pkg/stream"
)

func (s *Server) listEscalationRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Store.ListEscalationRules(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rules)
}

func (s *Server) getEscalationRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.Store.GetEscalationRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rule)
}

func (s *Server) createEscalationRule(w http.ResponseWriter, r *http.Request) {
	var rule models.EscalationRule
	if !decodeJSON(w, r, &rule) {
		return
	}
	saved, err := s.Store.CreateEscalationRule(r.Context(), rule)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "escalation_rule_created",
		Detail: fmt.Sprintf("escalation rule %q created (priority %d)", saved.Name, saved.Priority),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusCreated, saved)
}

func (s *Server) patchEscalationRule(w http.ResponseWriter, r *http.Request) {
	var patch models.EscalationRulePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	saved, err := s.Store.UpdateEscalationRule(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "escalation_rule_updated",
		Detail: fmt.Sprintf("escalation rule %q updated", saved.Name),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteEscalationRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteEscalationRule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "escalation_rule_deleted",
		Detail: fmt.Sprintf("escalation rule %s deleted", id),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, map[string]string{"id": id, "deleted": "true"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listGatingRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Store.ListGatingRules(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rules)
}

func (s *Server) getGatingRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.Store.GetGatingRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rule)
}

func (s *Server) createGatingRule(w http.ResponseWriter, r *http.Request) {
	var rule models.GatingRule
	if !decodeJSON(w, r, &rule) {
		return
	}
	saved, err := s.Store.CreateGatingRule(r.Context(), rule)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "gating_rule_created",
		Detail: fmt.Sprintf("gating rule %q created for %s", saved.Name, saved.ActionType),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusCreated, saved)
}

func (s *Server) patchGatingRule(w http.ResponseWriter, r *http.Request) {
	var patch models.GatingRulePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	saved, err := s.Store.UpdateGatingRule(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "gating_rule_updated",
		Detail: fmt.Sprintf("gating rule %q updated", saved.Name),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteGatingRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteGatingRule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "gating_rule_deleted",
		Detail: fmt.Sprintf("gating rule %s deleted", id),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, map[string]string{"id": id, "deleted": "true"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSuppressionRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Store.ListSuppressionRules(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rules)
}

func (s *Server) getSuppressionRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.Store.GetSuppressionRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rule)
}

func (s *Server) createSuppressionRule(w http.ResponseWriter, r *http.Request) {
	var rule models.SuppressionRule
	if !decodeJSON(w, r, &rule) {
		return
	}
	saved, err := s.Store.CreateSuppressionRule(r.Context(), rule)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "suppression_rule_created",
		Detail: fmt.Sprintf("suppression rule %q created", saved.Name),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusCreated, saved)
}

func (s *Server) patchSuppressionRule(w http.ResponseWriter, r *http.Request) {
	var patch models.SuppressionRulePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	saved, err := s.Store.UpdateSuppressionRule(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "suppression_rule_updated",
		Detail: fmt.Sprintf("suppression rule %q updated", saved.Name),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteSuppressionRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteSuppressionRule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "suppression_rule_deleted",
		Detail: fmt.Sprintf("suppression rule %s deleted", id),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, map[string]string{"id": id, "deleted": "true"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMatrix(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Store.ListMatrix(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) getMatrixEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.Store.GetMatrixEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entry)
}

func (s *Server) createMatrixEntry(w http.ResponseWriter, r *http.Request) {
	var entry models.DecisionMatrixEntry
	if !decodeJSON(w, r, &entry) {
		return
	}
	saved, err := s.Store.CreateMatrixEntry(r.Context(), entry)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "decision_matrix_created",
		Detail: fmt.Sprintf("decision matrix entry %q created", saved.Severity),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusCreated, saved)
}

func (s *Server) patchMatrixEntry(w http.ResponseWriter, r *http.Request) {
	var patch models.DecisionMatrixPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	saved, err := s.Store.UpdateMatrixEntry(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "decision_matrix_updated",
		Detail: fmt.Sprintf("decision matrix entry %q updated", saved.Severity),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteMatrixEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteMatrixEntry(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "decision_matrix_deleted",
		Detail: fmt.Sprintf("decision matrix entry %s deleted", id),
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, map[string]string{"id": id, "deleted": "true"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.Store.ListPolicyRules(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, policies)
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.Store.GetPolicyRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, policy)
}

func (s *Server) patchPolicy(w http.ResponseWriter, r *http.Request) {
	var patch models.PolicyRulePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	saved, err := s.Store.UpdatePolicyRule(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	detail := fmt.Sprintf("policy %q updated", saved.Name)
	if patch.Enabled != nil {
		verb := "disabled"
		if *patch.Enabled {
			verb = "enabled"
		}
		detail = fmt.Sprintf("policy %q %s", saved.Name, verb)
	}
	if !s.recordAudit(w, r, models.AuditEntry{
		Action: "policy_changed",
		Detail: detail,
	}) {
		return
	}
	s.publish(stream.EventRulesChanged, saved)
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.Store.ListEventSources(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sources)
}
