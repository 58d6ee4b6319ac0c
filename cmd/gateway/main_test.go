package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tejasgit/zero-trust-agent/pkg/audit"
	"github.com/tejasgit/zero-trust-agent/pkg/engine"
	"github.com/tejasgit/zero-trust-agent/pkg/models"
	"github.com/tejasgit/zero-trust-agent/pkg/store"
)

type testServer struct {
	*Server
	http  *httptest.Server
	store *store.MemoryStore
	sink  *audit.MemorySink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ms := store.NewMemoryStore()
	sink := audit.NewMemorySink()
	s := newServer(context.Background(), ms, sink, nil)
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return &testServer{Server: s, http: ts, store: ms, sink: sink}
}

// seedAutomation puts the server in the permissive configuration the
// execution-path tests need: full maturity, auto-escalation on, a sev1
// matrix row and a matching escalation + gating rule pair.
func (ts *testServer) seedAutomation(t *testing.T, actionType string, requireApproval bool) {
	t.Helper()
	ctx := context.Background()
	level, auto := 3, true
	if _, err := ts.store.UpdateSettings(ctx, models.SettingsPatch{MaturityLevel: &level, AutoEscalation: &auto}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	if _, err := ts.store.CreateMatrixEntry(ctx, models.DecisionMatrixEntry{
		Severity: "sev1", CreateIncident: true, TriggerMim: true, PageOncall: true,
	}); err != nil {
		t.Fatalf("seed matrix: %v", err)
	}
	if _, err := ts.store.CreateEscalationRule(ctx, models.EscalationRule{
		Name: "seeded", Priority: 10, Enabled: true, ActionType: actionType, ActionTarget: "team",
	}); err != nil {
		t.Fatalf("seed escalation: %v", err)
	}
	if _, err := ts.store.CreateGatingRule(ctx, models.GatingRule{
		Name: "seeded gate", ActionType: actionType, MinConfidence: 0.5,
		RequireHumanApproval: requireApproval, ApprovalTimeout: 300,
		FallbackAction: models.FallbackQueue, Enabled: true,
	}); err != nil {
		t.Fatalf("seed gating: %v", err)
	}
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func evaluateBody(source, title, label string, confidence float64, signals int) map[string]any {
	return map[string]any{
		"alert": map[string]any{"source": source, "title": title},
		"classification": map[string]any{
			"label": label, "confidence": confidence, "priority": "critical", "signals": signals,
		},
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, ts.http.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestIncidentCRUD(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.http.URL+"/api/incidents", map[string]any{
		"title": "db primary down", "source": "Datadog", "priority": "critical",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var inc models.Incident
	if err := json.Unmarshal(body, &inc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inc.ID == "" || inc.Status != models.StatusOpen {
		t.Fatalf("created = %+v", inc)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.http.URL+"/api/incidents/"+inc.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPatch, ts.http.URL+"/api/incidents/"+inc.ID, map[string]any{"status": "escalated"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %s", resp.StatusCode, body)
	}

	// escalated -> open is not a legal transition.
	resp, _ = doJSON(t, http.MethodPatch, ts.http.URL+"/api/incidents/"+inc.ID, map[string]any{"status": "open"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("illegal transition status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.http.URL+"/api/incidents/"+inc.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.http.URL+"/api/incidents/"+inc.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}

	// The deleted incident's trail survives with the dangling id.
	entries, _ := ts.sink.ListByIncident(context.Background(), inc.ID)
	if len(entries) == 0 {
		t.Fatalf("trail must outlive the incident")
	}
}

func TestIncidentValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.http.URL+"/api/incidents", map[string]any{"title": "  "})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("blank title status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.http.URL+"/api/incidents/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing incident status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.http.URL+"/api/incidents", strings.NewReader("{broken"))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed json status = %d", resp2.StatusCode)
	}
}

func TestSettingsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.http.URL+"/api/settings", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var cfg models.Settings
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg != models.DefaultSettings() {
		t.Fatalf("settings = %+v", cfg)
	}

	resp, body = doJSON(t, http.MethodPatch, ts.http.URL+"/api/settings", map[string]any{"maturityLevel": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPatch, ts.http.URL+"/api/settings", map[string]any{"maturityLevel": 9})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid settings status = %d", resp.StatusCode)
	}
}

func TestEscalationRuleCRUDRecordsAudit(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.http.URL+"/api/escalation-rules",
		strings.NewReader(`{"name":"sev1 page","priority":10,"enabled":true,"actionType":"pagerduty-escalate","actionTarget":"sre-oncall"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "ops@example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, raw)
	}
	var rule models.EscalationRule
	if err := json.Unmarshal(raw, &rule); err != nil {
		t.Fatalf("decode: %v", err)
	}

	entries, _ := ts.sink.List(context.Background(), 1)
	if len(entries) != 1 || entries[0].Action != "escalation_rule_created" || entries[0].Actor != "ops@example.com" {
		t.Fatalf("audit entry = %+v", entries)
	}

	resp2, body := doJSON(t, http.MethodPatch, ts.http.URL+"/api/escalation-rules/"+rule.ID, map[string]any{"priority": 5})
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %s", resp2.StatusCode, body)
	}
	resp2, _ = doJSON(t, http.MethodDelete, ts.http.URL+"/api/escalation-rules/"+rule.ID, nil)
	if resp2.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp2.StatusCode)
	}

	resp2, _ = doJSON(t, http.MethodPost, ts.http.URL+"/api/escalation-rules", map[string]any{"name": ""})
	if resp2.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid rule status = %d", resp2.StatusCode)
	}
}

func TestRuleGetByID(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	esc, err := ts.store.CreateEscalationRule(ctx, models.EscalationRule{Name: "page", Priority: 10, Enabled: true, ActionType: models.ActionPagerDuty, ActionTarget: "oncall"})
	if err != nil {
		t.Fatalf("seed escalation: %v", err)
	}
	gat, err := ts.store.CreateGatingRule(ctx, models.GatingRule{Name: "gate", ActionType: models.ActionPagerDuty, MinConfidence: 0.8, FallbackAction: models.FallbackQueue, Enabled: true})
	if err != nil {
		t.Fatalf("seed gating: %v", err)
	}
	sup, err := ts.store.CreateSuppressionRule(ctx, models.SuppressionRule{Name: "noise", Enabled: true})
	if err != nil {
		t.Fatalf("seed suppression: %v", err)
	}
	mat, err := ts.store.CreateMatrixEntry(ctx, models.DecisionMatrixEntry{Severity: "sev1", CreateIncident: true})
	if err != nil {
		t.Fatalf("seed matrix: %v", err)
	}

	for _, tc := range []struct{ path, id, name string }{
		{"/api/escalation-rules/", esc.ID, esc.Name},
		{"/api/gating-rules/", gat.ID, gat.Name},
		{"/api/suppression-rules/", sup.ID, sup.Name},
		{"/api/decision-matrix/", mat.ID, mat.Severity},
	} {
		resp, body := doJSON(t, http.MethodGet, ts.http.URL+tc.path+tc.id, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s%s status = %d: %s", tc.path, tc.id, resp.StatusCode, body)
		}
		if !strings.Contains(string(body), tc.name) {
			t.Fatalf("GET %s%s body = %s", tc.path, tc.id, body)
		}
		resp, _ = doJSON(t, http.MethodGet, ts.http.URL+tc.path+"nope", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %snope status = %d, want 404", tc.path, resp.StatusCode)
		}
	}
}

func TestPolicyEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	threshold := 0.85
	policy, err := ts.store.CreatePolicyRule(ctx, models.PolicyRule{
		Name:      "High Confidence Auto-Escalate",
		Condition: "confidence >= threshold AND classification IN (high, sev1)",
		Action:    "pagerduty-escalate",
		Threshold: &threshold,
		Enabled:   true,
		Category:  models.PolicyCategoryEscalation,
	})
	if err != nil {
		t.Fatalf("seed policy: %v", err)
	}

	resp, body := doJSON(t, http.MethodGet, ts.http.URL+"/api/policies", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), policy.ID) {
		t.Fatalf("list status = %d: %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodGet, ts.http.URL+"/api/policies/"+policy.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d: %s", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.http.URL+"/api/policies/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing policy status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPatch, ts.http.URL+"/api/policies/"+policy.ID,
		strings.NewReader(`{"enabled":false}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "operator@example.com")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	raw, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %s", resp2.StatusCode, raw)
	}
	var updated models.PolicyRule
	if err := json.Unmarshal(raw, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Enabled {
		t.Fatalf("policy still enabled after toggle")
	}

	entries, _ := ts.sink.List(context.Background(), 1)
	if len(entries) != 1 || entries[0].Action != "policy_changed" || entries[0].Actor != "operator@example.com" {
		t.Fatalf("audit entry = %+v", entries)
	}
	if !strings.Contains(entries[0].Detail, "disabled") {
		t.Fatalf("audit detail = %q, want the toggle direction named", entries[0].Detail)
	}

	// The toggle is the only writable field.
	resp, _ = doJSON(t, http.MethodPatch, ts.http.URL+"/api/policies/"+policy.ID, map[string]any{"name": "renamed"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPatch, ts.http.URL+"/api/policies/nope", map[string]any{"enabled": true})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("patch missing policy status = %d", resp.StatusCode)
	}
}

func TestSourcesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	for _, src := range []models.EventSource{
		{Name: "AWS CloudWatch", Type: "streaming", Status: models.SourceActive, EventsProcessed: 45621},
		{Name: "New Relic", Type: "streaming", Status: models.SourceInactive, EventsProcessed: 15672},
	} {
		if _, err := ts.store.CreateEventSource(ctx, src); err != nil {
			t.Fatalf("seed source %q: %v", src.Name, err)
		}
	}

	resp, body := doJSON(t, http.MethodGet, ts.http.URL+"/api/sources", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var sources []models.EventSource
	if err := json.Unmarshal(body, &sources); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sources) != 2 || sources[0].Name != "AWS CloudWatch" || sources[1].Status != models.SourceInactive {
		t.Fatalf("sources = %+v", sources)
	}
}

func TestEvaluateSuppressedAlert(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAutomation(t, models.ActionSlackNotify, false)

	pat := "Synthetic"
	if _, err := ts.store.CreateSuppressionRule(context.Background(), models.SuppressionRule{
		Name: "flaps", Enabled: true, TitlePattern: &pat,
	}); err != nil {
		t.Fatalf("seed suppression: %v", err)
	}

	resp, body := doJSON(t, http.MethodPost, ts.http.URL+"/api/alerts/evaluate",
		evaluateBody("New Relic", "Synthetic monitor failure", "sev1", 0.95, 2))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out engine.Outcome
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result != engine.ResultSuppressed {
		t.Fatalf("result = %q", out.Result)
	}

	snap := ts.Metrics.Snapshot()
	if snap.SuppressedTotal != 1 || snap.Results[engine.ResultSuppressed] != 1 {
		t.Fatalf("metrics = %+v", snap)
	}
}

func TestEvaluateExecutedAlert(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAutomation(t, models.ActionSlackNotify, false)
	ts.Engine.Signals = engine.StaticSignals{
		BehaviorBySource: map[string]float64{"Datadog": 0.95},
		HistoryBySource:  map[string]float64{"Datadog": 0.95},
	}

	resp, body := doJSON(t, http.MethodPost, ts.http.URL+"/api/alerts/evaluate",
		evaluateBody("Datadog", "Memory usage critical on prod-worker-3", "sev1", 0.95, 2))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out engine.Outcome
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result != engine.ResultExecuted {
		t.Fatalf("result = %q (%s)", out.Result, out.Reason)
	}
	if out.Incident == nil || out.Incident.Status != models.StatusEscalated {
		t.Fatalf("incident = %+v", out.Incident)
	}
}

func TestEvaluateRejectsEmptyAlert(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, ts.http.URL+"/api/alerts/evaluate",
		evaluateBody("", "", "sev1", 0.9, 2))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestApprovalFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAutomation(t, models.ActionPagerDuty, true)
	ts.Engine.Signals = engine.StaticSignals{
		BehaviorBySource: map[string]float64{"Datadog": 0.95},
		HistoryBySource:  map[string]float64{"Datadog": 0.95},
	}

	resp, body := doJSON(t, http.MethodPost, ts.http.URL+"/api/alerts/evaluate",
		evaluateBody("Datadog", "Database query latency p99 exceeds SLA", "sev1", 0.95, 2))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("evaluate status = %d: %s", resp.StatusCode, body)
	}
	var out engine.Outcome
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result != engine.ResultAwaitingApproval || out.Approval == nil {
		t.Fatalf("outcome = %q approval=%v (%s)", out.Result, out.Approval, out.Reason)
	}

	resp, body = doJSON(t, http.MethodGet, ts.http.URL+"/api/approvals", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), out.Approval.ID) {
		t.Fatalf("pending list missing approval: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, ts.http.URL+"/api/approvals/"+out.Approval.ID,
		map[string]string{"decision": "approve", "approver": "oncall@example.com"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d: %s", resp.StatusCode, body)
	}

	// Resolution runs synchronously through the ledger callback.
	inc, err := ts.store.GetIncident(context.Background(), out.Incident.ID)
	if err != nil || inc.Status != models.StatusEscalated {
		t.Fatalf("incident after approval = %+v, %v", inc, err)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.http.URL+"/api/approvals/"+out.Approval.ID,
		map[string]string{"decision": "reject"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double resolve status = %d", resp.StatusCode)
	}
}

func TestApprovalErrors(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.http.URL+"/api/approvals/nope",
		map[string]string{"decision": "approve"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown approval status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.http.URL+"/api/approvals/nope",
		map[string]string{"decision": "maybe"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad decision status = %d", resp.StatusCode)
	}
}

func TestAuditFailureFailsMutation(t *testing.T) {
	ts := newTestServer(t)
	ts.sink.Fail(true)

	resp, _ := doJSON(t, http.MethodPost, ts.http.URL+"/api/incidents", map[string]any{"title": "x"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when the trail cannot be written", resp.StatusCode)
	}
}

func TestRequestBodyLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.MaxRequestBodyBytes = 64

	huge := fmt.Sprintf(`{"title":%q}`, strings.Repeat("a", 1024))
	req, _ := http.NewRequest(http.MethodPost, ts.http.URL+"/api/incidents", strings.NewReader(huge))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	doJSON(t, http.MethodGet, ts.http.URL+"/healthz", nil)

	resp, body := doJSON(t, http.MethodGet, ts.http.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "endpoints") {
		t.Fatalf("json metrics: %d %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodGet, ts.http.URL+"/metrics/prometheus", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "triage_endpoint_count") {
		t.Fatalf("prometheus metrics: %d", resp.StatusCode)
	}
}
