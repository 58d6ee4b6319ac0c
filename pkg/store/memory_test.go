package store

import (
	"context"
	"errors"
	"testing"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

func sp(s string) *string { return &s }

func TestMemoryStoreIncidentLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	inc, err := m.CreateIncident(ctx, models.Incident{Title: "db down", Source: "Datadog"})
	if err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	if inc.ID == "" || inc.Status != models.StatusOpen || inc.CreatedAt.IsZero() {
		t.Fatalf("created incident missing defaults: %+v", inc)
	}

	got, err := m.GetIncident(ctx, inc.ID)
	if err != nil || got.Title != "db down" {
		t.Fatalf("GetIncident = %+v, %v", got, err)
	}

	updated, err := m.UpdateIncident(ctx, inc.ID, models.IncidentPatch{Status: sp(models.StatusEscalated)})
	if err != nil {
		t.Fatalf("UpdateIncident: %v", err)
	}
	if updated.Status != models.StatusEscalated {
		t.Fatalf("status = %q", updated.Status)
	}

	// escalated permits only resolved.
	if _, err := m.UpdateIncident(ctx, inc.ID, models.IncidentPatch{Status: sp(models.StatusOpen)}); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}

	if err := m.DeleteIncident(ctx, inc.ID); err != nil {
		t.Fatalf("DeleteIncident: %v", err)
	}
	if _, err := m.GetIncident(ctx, inc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	if err := m.DeleteIncident(ctx, inc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete must be ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreIncidentOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, title := range []string{"first", "second", "third"} {
		if _, err := m.CreateIncident(ctx, models.Incident{Title: title}); err != nil {
			t.Fatalf("CreateIncident: %v", err)
		}
	}
	list, err := m.ListIncidents(ctx)
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(list) != 3 || list[0].Title != "third" || list[2].Title != "first" {
		t.Fatalf("incidents must list newest first, got %+v", list)
	}
}

func TestMemoryStoreEscalationRuleOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, r := range []models.EscalationRule{
		{Name: "broad", Priority: 30, ActionType: models.ActionSlackNotify},
		{Name: "urgent", Priority: 10, ActionType: models.ActionPagerDuty},
		{Name: "mid", Priority: 20, ActionType: models.ActionServiceNow},
	} {
		if _, err := m.CreateEscalationRule(ctx, r); err != nil {
			t.Fatalf("CreateEscalationRule: %v", err)
		}
	}
	list, err := m.ListEscalationRules(ctx)
	if err != nil {
		t.Fatalf("ListEscalationRules: %v", err)
	}
	if list[0].Name != "urgent" || list[1].Name != "mid" || list[2].Name != "broad" {
		t.Fatalf("escalation rules must list by ascending priority, got %+v", list)
	}
}

func TestMemoryStoreRejectsInvalidRules(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if _, err := m.CreateEscalationRule(ctx, models.EscalationRule{Name: ""}); !errors.Is(err, models.ErrInvalidRule) {
		t.Fatalf("create: want ErrInvalidRule, got %v", err)
	}

	r, err := m.CreateGatingRule(ctx, models.GatingRule{
		Name: "g", ActionType: models.ActionPagerDuty, MinConfidence: 0.8, FallbackAction: models.FallbackQueue,
	})
	if err != nil {
		t.Fatalf("CreateGatingRule: %v", err)
	}
	bad := 1.5
	if _, err := m.UpdateGatingRule(ctx, r.ID, models.GatingRulePatch{MinConfidence: &bad}); !errors.Is(err, models.ErrInvalidRule) {
		t.Fatalf("update: want ErrInvalidRule, got %v", err)
	}
	// The failed update must not have landed.
	list, _ := m.ListGatingRules(ctx)
	if list[0].MinConfidence != 0.8 {
		t.Fatalf("rejected patch leaked into the store: %+v", list[0])
	}
}

func TestMemoryStoreSuppressedCounter(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	r, err := m.CreateSuppressionRule(ctx, models.SuppressionRule{Name: "flaps", SuppressedCount: 99})
	if err != nil {
		t.Fatalf("CreateSuppressionRule: %v", err)
	}
	if r.SuppressedCount != 0 {
		t.Fatalf("counter must start at zero regardless of input, got %d", r.SuppressedCount)
	}

	for i := 0; i < 3; i++ {
		if err := m.IncrementSuppressed(ctx, r.ID); err != nil {
			t.Fatalf("IncrementSuppressed: %v", err)
		}
	}
	list, _ := m.ListSuppressionRules(ctx)
	if list[0].SuppressedCount != 3 {
		t.Fatalf("counter = %d, want 3", list[0].SuppressedCount)
	}

	if err := m.IncrementSuppressed(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreMatrixOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, e := range []models.DecisionMatrixEntry{
		{Severity: "noise", SortOrder: 5},
		{Severity: "sev1", SortOrder: 1},
		{Severity: "medium", SortOrder: 3},
	} {
		if _, err := m.CreateMatrixEntry(ctx, e); err != nil {
			t.Fatalf("CreateMatrixEntry: %v", err)
		}
	}
	list, err := m.ListMatrix(ctx)
	if err != nil {
		t.Fatalf("ListMatrix: %v", err)
	}
	if list[0].Severity != "sev1" || list[2].Severity != "noise" {
		t.Fatalf("matrix must list by sort order, got %+v", list)
	}
}

func TestMemoryStoreRuleGets(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	esc, _ := m.CreateEscalationRule(ctx, models.EscalationRule{Name: "e", ActionType: models.ActionSlackNotify})
	gat, _ := m.CreateGatingRule(ctx, models.GatingRule{Name: "g", ActionType: models.ActionSlackNotify, MinConfidence: 0.5, FallbackAction: models.FallbackLog})
	sup, _ := m.CreateSuppressionRule(ctx, models.SuppressionRule{Name: "s"})
	mat, _ := m.CreateMatrixEntry(ctx, models.DecisionMatrixEntry{Severity: "sev1"})

	if got, err := m.GetEscalationRule(ctx, esc.ID); err != nil || got.Name != "e" {
		t.Fatalf("GetEscalationRule = %+v, %v", got, err)
	}
	if got, err := m.GetGatingRule(ctx, gat.ID); err != nil || got.Name != "g" {
		t.Fatalf("GetGatingRule = %+v, %v", got, err)
	}
	if got, err := m.GetSuppressionRule(ctx, sup.ID); err != nil || got.Name != "s" {
		t.Fatalf("GetSuppressionRule = %+v, %v", got, err)
	}
	if got, err := m.GetMatrixEntry(ctx, mat.ID); err != nil || got.Severity != "sev1" {
		t.Fatalf("GetMatrixEntry = %+v, %v", got, err)
	}

	if _, err := m.GetEscalationRule(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("escalation miss: want ErrNotFound, got %v", err)
	}
	if _, err := m.GetGatingRule(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("gating miss: want ErrNotFound, got %v", err)
	}
	if _, err := m.GetSuppressionRule(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("suppression miss: want ErrNotFound, got %v", err)
	}
	if _, err := m.GetMatrixEntry(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("matrix miss: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStorePolicyRules(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	threshold := 0.85
	r, err := m.CreatePolicyRule(ctx, models.PolicyRule{
		Name:      "High Confidence Auto-Escalate",
		Condition: "confidence >= threshold",
		Action:    "pagerduty-escalate",
		Threshold: &threshold,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("CreatePolicyRule: %v", err)
	}
	if r.Category != models.PolicyCategoryEscalation {
		t.Fatalf("category must default to escalation, got %q", r.Category)
	}

	if _, err := m.CreatePolicyRule(ctx, models.PolicyRule{Name: "no condition", Action: "suppress"}); !errors.Is(err, models.ErrInvalidRule) {
		t.Fatalf("want ErrInvalidRule, got %v", err)
	}

	got, err := m.GetPolicyRule(ctx, r.ID)
	if err != nil || got.Name != r.Name {
		t.Fatalf("GetPolicyRule = %+v, %v", got, err)
	}

	off := false
	updated, err := m.UpdatePolicyRule(ctx, r.ID, models.PolicyRulePatch{Enabled: &off})
	if err != nil {
		t.Fatalf("UpdatePolicyRule: %v", err)
	}
	if updated.Enabled || !updated.UpdatedAt.After(r.UpdatedAt) {
		t.Fatalf("toggle did not land: %+v", updated)
	}
	// Only the toggle is writable; everything else survives untouched.
	if updated.Condition != r.Condition || updated.Threshold == nil || *updated.Threshold != threshold {
		t.Fatalf("patch touched read-only fields: %+v", updated)
	}

	if _, err := m.UpdatePolicyRule(ctx, "missing", models.PolicyRulePatch{Enabled: &off}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	second, _ := m.CreatePolicyRule(ctx, models.PolicyRule{Name: "later", Condition: "x", Action: "suppress"})
	list, err := m.ListPolicyRules(ctx)
	if err != nil {
		t.Fatalf("ListPolicyRules: %v", err)
	}
	if len(list) != 2 || list[0].ID != r.ID || list[1].ID != second.ID {
		t.Fatalf("policies must list oldest first, got %+v", list)
	}
}

func TestMemoryStoreEventSources(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	src, err := m.CreateEventSource(ctx, models.EventSource{Name: "Splunk", Type: "webhook", EventsProcessed: 28934})
	if err != nil {
		t.Fatalf("CreateEventSource: %v", err)
	}
	if src.Status != models.SourceActive {
		t.Fatalf("status must default to active, got %q", src.Status)
	}

	if _, err := m.CreateEventSource(ctx, models.EventSource{Name: "", Type: "webhook"}); !errors.Is(err, models.ErrInvalidRule) {
		t.Fatalf("want ErrInvalidRule, got %v", err)
	}

	if _, err := m.CreateEventSource(ctx, models.EventSource{Name: "New Relic", Type: "streaming", Status: models.SourceInactive}); err != nil {
		t.Fatalf("CreateEventSource: %v", err)
	}
	list, err := m.ListEventSources(ctx)
	if err != nil {
		t.Fatalf("ListEventSources: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Splunk" || list[1].Status != models.SourceInactive {
		t.Fatalf("sources = %+v", list)
	}
}

func TestMemoryStoreSettings(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s, err := m.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if s != models.DefaultSettings() {
		t.Fatalf("settings must start at the defaults: %+v", s)
	}

	level := 2
	s, err = m.UpdateSettings(ctx, models.SettingsPatch{MaturityLevel: &level})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if s.MaturityLevel != 2 {
		t.Fatalf("maturity = %d, want 2", s.MaturityLevel)
	}

	bad := 5
	if _, err := m.UpdateSettings(ctx, models.SettingsPatch{MaturityLevel: &bad}); !errors.Is(err, models.ErrInvalidRule) {
		t.Fatalf("want ErrInvalidRule, got %v", err)
	}
	s, _ = m.GetSettings(ctx)
	if s.MaturityLevel != 2 {
		t.Fatalf("rejected settings patch leaked: %+v", s)
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if _, err := m.CreateEscalationRule(ctx, models.EscalationRule{Name: "e", ActionType: models.ActionSlackNotify}); err != nil {
		t.Fatalf("seed escalation: %v", err)
	}
	if _, err := m.CreateGatingRule(ctx, models.GatingRule{Name: "g", ActionType: models.ActionSlackNotify, MinConfidence: 0.5, FallbackAction: models.FallbackLog}); err != nil {
		t.Fatalf("seed gating: %v", err)
	}
	if _, err := m.CreateSuppressionRule(ctx, models.SuppressionRule{Name: "s"}); err != nil {
		t.Fatalf("seed suppression: %v", err)
	}
	if _, err := m.CreateMatrixEntry(ctx, models.DecisionMatrixEntry{Severity: "sev1"}); err != nil {
		t.Fatalf("seed matrix: %v", err)
	}

	snap, err := Snapshot(ctx, m)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Escalation) != 1 || len(snap.Gating) != 1 || len(snap.Suppression) != 1 || len(snap.Matrix) != 1 {
		t.Fatalf("snapshot incomplete: %+v", snap)
	}
}
