package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// runSeed loads the starter configuration: system settings, the five
// escalation rules, five gating rules, four suppression rules, the
// decision matrix, the policy board, the event source catalog, and a
// set of demo incidents with their audit trail. Tables that already
// hold data are left alone, so reruns are safe.
func runSeed(ctx context.Context, db migrationDB, logf func(format string, args ...any)) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO settings (id, maturity_level, auto_escalation, mim_gating, confidence_threshold, deduplication_window)
		VALUES (1, 3, TRUE, TRUE, 0.85, 300)
		ON CONFLICT (id) DO NOTHING
	`); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	rulesSeeded, err := seedRuleTables(ctx, tx)
	if err != nil {
		return err
	}
	policiesSeeded, err := seedPolicyBoard(ctx, tx)
	if err != nil {
		return err
	}
	sourcesSeeded, err := seedEventSources(ctx, tx)
	if err != nil {
		return err
	}
	incidentsSeeded, err := seedIncidents(ctx, tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	logf("seed complete: rules=%t policies=%t sources=%t incidents=%t",
		rulesSeeded, policiesSeeded, sourcesSeeded, incidentsSeeded)
	return nil
}

func tableEmpty(ctx context.Context, tx pgx.Tx, table string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+`)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return !exists, nil
}

func seedRuleTables(ctx context.Context, tx pgx.Tx) (bool, error) {
	empty, err := tableEmpty(ctx, tx, "escalation_rules")
	if err != nil || !empty {
		return false, err
	}

	type escRow struct {
		name, description                string
		priority                         int
		condClass, condSource, condPrio  *string
		condMinConf, condMaxConf         *float64
		actionType, actionTarget, config string
	}
	str := func(s string) *string { return &s }
	f64 := func(f float64) *float64 { return &f }
	escalations := []escRow{
		{
			name:        "SEV1 Auto-Page + MIM",
			description: "When the classifier reports sev1 with high confidence, immediately page on-call and trigger Major Incident Management",
			priority:    10, condClass: str("sev1"), condMinConf: f64(0.90), condPrio: str("critical"),
			actionType: "pagerduty-escalate", actionTarget: "sre-oncall",
			config: `{"urgency":"high","escalation_policy":"sev1-default","trigger_mim":true}`,
		},
		{
			name:        "Multi-Region Blast Radius Escalation",
			description: "Escalate when source indicates multi-region impact regardless of initial classification",
			priority:    15, condSource: str("AWS CloudWatch"), condClass: str("high"), condMinConf: f64(0.85),
			actionType: "pagerduty-escalate", actionTarget: "cloud-infra-oncall",
			config: `{"urgency":"high","include_runbook":true}`,
		},
		{
			name:        "High Severity ServiceNow INC",
			description: "Create ServiceNow incident for all high-severity classifications with assignment to appropriate team",
			priority:    20, condClass: str("high"), condMinConf: f64(0.80), condPrio: str("high"),
			actionType: "servicenow-create", actionTarget: "platform-engineering",
			config: `{"impact":"2","urgency":"2","category":"Infrastructure"}`,
		},
		{
			name:        "Medium Priority Slack Alert",
			description: "Send Slack notification to incident channel for medium-priority incidents requiring awareness",
			priority:    30, condClass: str("medium"), condMinConf: f64(0.70), condPrio: str("medium"),
			actionType: "slack-notify", actionTarget: "#incident-triage",
			config: `{"mention_group":"@infra-leads","thread":true}`,
		},
		{
			name:        "Low Confidence Human Review",
			description: "Route incidents with low classifier confidence to human review queue for manual triage",
			priority:    50, condMaxConf: f64(0.70),
			actionType: "human-review", actionTarget: "triage-queue",
			config: `{"sla_minutes":30,"notify_channel":"#triage-review"}`,
		},
	}
	for _, r := range escalations {
		if _, err := tx.Exec(ctx, `
			INSERT INTO escalation_rules
			(id, name, description, priority, enabled, condition_classification, condition_source,
			 condition_min_confidence, condition_max_confidence, condition_priority,
			 action_type, action_target, action_config)
			VALUES ($1,$2,$3,$4,TRUE,$5,$6,$7,$8,$9,$10,$11,$12::jsonb)
		`, uuid.NewString(), r.name, r.description, r.priority, r.condClass, r.condSource,
			r.condMinConf, r.condMaxConf, r.condPrio, r.actionType, r.actionTarget, r.config); err != nil {
			return false, fmt.Errorf("seed escalation rule %q: %w", r.name, err)
		}
	}

	type gateRow struct {
		name, description, actionType, fallback string
		minConf                                 float64
		approval                                bool
		timeout                                 int
	}
	gates := []gateRow{
		{"MIM Activation Gate", "Require minimum 92% confidence and human approval before triggering Major Incident Management process",
			"mim-trigger", "queue", 0.92, true, 600},
		{"PagerDuty Page Gate", "Allow auto-paging at 88% confidence without human approval for faster response times",
			"pagerduty-escalate", "slack-notify", 0.88, false, 300},
		{"ServiceNow INC Gate", "Auto-create ServiceNow incidents at 75% confidence. Low-risk action, no approval needed",
			"servicenow-create", "queue", 0.75, false, 900},
		{"Slack Notification Gate", "Allow Slack notifications at 60% confidence. Informational only, minimal blast radius",
			"slack-notify", "log", 0.60, false, 0},
		{"Auto-Suppress Gate", "Require 95% confidence to auto-suppress. High bar prevents suppressing real incidents",
			"suppress", "human-review", 0.95, false, 0},
	}
	for _, g := range gates {
		if _, err := tx.Exec(ctx, `
			INSERT INTO gating_rules
			(id, name, description, enabled, action_type, min_confidence,
			 require_human_approval, approval_timeout, fallback_action)
			VALUES ($1,$2,$3,TRUE,$4,$5,$6,$7,$8)
		`, uuid.NewString(), g.name, g.description, g.actionType, g.minConf, g.approval, g.timeout, g.fallback); err != nil {
			return false, fmt.Errorf("seed gating rule %q: %w", g.name, err)
		}
	}

	type supRow struct {
		name, description                          string
		enabled                                    bool
		source, title, class, winStart, winEnd     *string
		count                                      int64
	}
	suppressions := []supRow{
		{name: "New Relic Synthetic Flaps", description: "Suppress transient synthetic monitor failures that auto-resolve within 10 minutes",
			enabled: true, source: str("New Relic"), title: str("Synthetic Monitor.*Timeout"), count: 47},
		{name: "Dev Account Billing Alerts", description: "Suppress billing alerts from development and sandbox AWS accounts",
			enabled: true, source: str("AWS CloudWatch"), title: str("Billing Alarm.*Development"), class: str("low|noise"), count: 12},
		{name: "Maintenance Window - Weekend Deploys", description: "Suppress expected alerts during scheduled weekend deployment windows",
			enabled: false, title: str("Deploy|Deployment|Rolling Update"), winStart: str("02:00"), winEnd: str("06:00"), count: 83},
		{name: "Known Flaky Health Checks", description: "Suppress health check failures for services with known intermittent connectivity issues",
			enabled: true, source: str("Splunk|New Relic"), title: str("Health Check.*Failed|Heartbeat.*Loss"), count: 156},
	}
	for _, r := range suppressions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO suppression_rules
			(id, name, description, enabled, source_pattern, title_pattern, classification_pattern,
			 time_window_start, time_window_end, suppressed_count)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, uuid.NewString(), r.name, r.description, r.enabled, r.source, r.title, r.class,
			r.winStart, r.winEnd, r.count); err != nil {
			return false, fmt.Errorf("seed suppression rule %q: %w", r.name, err)
		}
	}

	type matrixRow struct {
		severity, description, nrSignal, sources, criteria string
		create, mim, page                                  bool
		order                                              int
	}
	// Severity labels match the classifier's vocabulary so the resolver
	// finds them by exact match.
	matrix := []matrixRow{
		{"sev1", "Critical business impact - Complete service outage, data loss risk, or security breach affecting production",
			"NRQL: error_rate > 50% OR availability < 95%", "CloudWatch, PagerDuty, Salesforce (production)",
			"Multi-region impact, revenue-affecting, customer-facing degradation >50%, security incident",
			true, true, true, 1},
		{"high", "Major impact - Significant degradation to critical business function, single region outage",
			"NRQL: error_rate > 20% OR p99_latency > 5s", "CloudWatch, SnapLogic, Splunk",
			"Single region impact, partial service degradation, non-customer-facing critical path affected",
			true, false, true, 2},
		{"medium", "Moderate impact - Non-critical service degradation, workaround available, limited user impact",
			"NRQL: error_rate > 5% OR queue_depth > 10x baseline", "AEM, Splunk, SnapLogic",
			"Non-critical path affected, workaround exists, limited blast radius, no revenue impact",
			true, false, false, 3},
		{"low", "Low impact - Minor issue, cosmetic defect, or performance degradation within acceptable bounds",
			"NRQL: error_rate > 1% OR cpu_usage > 80%", "CloudWatch, New Relic",
			"Non-production impact, minor degradation, informational alert, capacity planning",
			true, false, false, 4},
		{"noise", "No action required - Transient alert, known false positive, or duplicate of existing incident",
			"N/A - Suppressed at ingestion", "Any source with flapping pattern",
			"Transient failure, auto-resolved, duplicate signature, maintenance window, known flaky check",
			false, false, false, 5},
	}
	for _, m := range matrix {
		if _, err := tx.Exec(ctx, `
			INSERT INTO decision_matrix
			(id, severity, description, create_incident, trigger_mim, page_oncall,
			 nr_signal, example_sources, criteria, sort_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, uuid.NewString(), m.severity, m.description, m.create, m.mim, m.page,
			m.nrSignal, m.sources, m.criteria, m.order); err != nil {
			return false, fmt.Errorf("seed matrix entry %q: %w", m.severity, err)
		}
	}

	return true, nil
}

// seedPolicyBoard loads the display policies the dashboard's policy
// page shows. These summarize the rule tables for operators; the
// engine never reads them.
func seedPolicyBoard(ctx context.Context, tx pgx.Tx) (bool, error) {
	empty, err := tableEmpty(ctx, tx, "policy_rules")
	if err != nil || !empty {
		return false, err
	}
	f64 := func(f float64) *float64 { return &f }
	type policyRow struct {
		name, description, condition, action, category string
		threshold                                      *float64
	}
	policies := []policyRow{
		{"High Confidence Auto-Escalate", "Automatically escalate incidents when classifier confidence exceeds threshold and severity warrants paging",
			"confidence >= threshold AND classification IN (high, sev1)", "pagerduty-escalate", "escalation", f64(0.85)},
		{"Production-Only MIM Gating", "Major Incident Management triggers only for production-impacting incidents above the confidence bar",
			"environment = production AND classification = sev1", "mim-trigger", "gating", f64(0.90)},
		{"Noise Suppression Window", "Suppress alerts matching known noise signatures during their configured windows",
			"matches(noise_signature) AND within(window)", "suppress", "suppression", nil},
		{"Low Confidence Human Review", "Route low-confidence classifications to the human review queue instead of automating",
			"confidence < threshold", "human-review", "validation", f64(0.70)},
		{"Two-Signal MIM Confirmation", "Require two independent corroborating signals before a major incident may be declared",
			"signals >= 2 AND classification = sev1", "mim-confirm", "gating", f64(0.90)},
		{"Rate Limit Circuit Breaker", "Pause automated escalation when the escalation rate exceeds the windowed limit",
			"escalations_in_window > limit", "pause-escalation", "validation", nil},
		{"Fail-Closed Identity Check", "Block all automated actions when the caller's identity cannot be verified",
			"identity_verified = false", "block-all", "validation", nil},
	}
	for _, p := range policies {
		if _, err := tx.Exec(ctx, `
			INSERT INTO policy_rules
			(id, name, description, condition, action, threshold, enabled, category)
			VALUES ($1,$2,$3,$4,$5,$6,TRUE,$7)
		`, uuid.NewString(), p.name, p.description, p.condition, p.action, p.threshold, p.category); err != nil {
			return false, fmt.Errorf("seed policy rule %q: %w", p.name, err)
		}
	}
	return true, nil
}

// seedEventSources loads the monitoring feed catalog with heartbeat
// offsets relative to seed time.
func seedEventSources(ctx context.Context, tx pgx.Tx) (bool, error) {
	empty, err := tableEmpty(ctx, tx, "event_sources")
	if err != nil || !empty {
		return false, err
	}
	now := time.Now().UTC()
	type sourceRow struct {
		name, typ, status string
		heartbeatAgo      time.Duration
		processed         int64
	}
	sources := []sourceRow{
		{"Salesforce", "webhook", "active", 2 * time.Minute, 12847},
		{"SnapLogic", "webhook", "active", 5 * time.Minute, 8432},
		{"AWS CloudWatch", "streaming", "active", 30 * time.Second, 45621},
		{"Adobe Experience Manager", "polling", "active", 10 * time.Minute, 3215},
		{"Splunk", "webhook", "active", 1 * time.Minute, 28934},
		{"New Relic", "streaming", "inactive", 2 * time.Hour, 15672},
	}
	for _, s := range sources {
		if _, err := tx.Exec(ctx, `
			INSERT INTO event_sources
			(id, name, type, status, last_heartbeat, events_processed)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, uuid.NewString(), s.name, s.typ, s.status, now.Add(-s.heartbeatAgo), s.processed); err != nil {
			return false, fmt.Errorf("seed event source %q: %w", s.name, err)
		}
	}
	return true, nil
}

type seedIncident struct {
	title, description, source         string
	classification                     string
	confidence                         float64
	status, priority, assignmentGroup  string
	escalationAction, aiReasoning      string
	correlationID                      string
	snowID, pdID, mimID                string
	rawPayload                         string
	ageHours                           float64
}

func seedIncidents(ctx context.Context, tx pgx.Tx) (bool, error) {
	empty, err := tableEmpty(ctx, tx, "incidents")
	if err != nil || !empty {
		return false, err
	}
	now := time.Now().UTC()
	for _, inc := range demoIncidents {
		id := uuid.NewString()
		createdAt := now.Add(-time.Duration(inc.ageHours * float64(time.Hour)))
		if _, err := tx.Exec(ctx, `
			INSERT INTO incidents
			(id, title, description, source, classification, confidence, status, priority,
			 assignment_group, escalation_action, ai_reasoning, correlation_id, snow_id, pd_id, mim_id,
			 raw_payload, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16::jsonb,$17)
		`, id, inc.title, inc.description, inc.source, inc.classification, inc.confidence,
			inc.status, inc.priority, nullable(inc.assignmentGroup), nullable(inc.escalationAction),
			inc.aiReasoning, inc.correlationID, nullable(inc.snowID), nullable(inc.pdID),
			nullable(inc.mimID), inc.rawPayload, createdAt); err != nil {
			return false, fmt.Errorf("seed incident %q: %w", inc.title, err)
		}
		if err := seedTrail(ctx, tx, id, inc, createdAt); err != nil {
			return false, err
		}
	}
	return true, nil
}

// seedTrail writes the create/classify/escalate history for one demo
// incident, spaced a few seconds apart to keep the trail ordered.
func seedTrail(ctx context.Context, tx pgx.Tx, incidentID string, inc seedIncident, createdAt time.Time) error {
	add := func(offset time.Duration, action, actor, detail string) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO audit_log (id, incident_id, action, actor, detail, correlation_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, uuid.NewString(), incidentID, action, actor, detail, inc.correlationID, createdAt.Add(offset))
		if err != nil {
			return fmt.Errorf("seed audit for %q: %w", inc.title, err)
		}
		return nil
	}
	if err := add(0, "incident_created", "triage-agent",
		fmt.Sprintf("Incident ingested from %s: %s", inc.source, inc.title)); err != nil {
		return err
	}
	if err := add(2*time.Second, "incident_classified", "bedrock-agent",
		fmt.Sprintf("Classified as %s with %.0f%% confidence", inc.classification, inc.confidence*100)); err != nil {
		return err
	}
	if inc.escalationAction == "" || inc.escalationAction == "suppress" {
		return nil
	}
	return add(4*time.Second, "decision_executed", "policy-engine",
		fmt.Sprintf("Escalation action: %s", inc.escalationAction))
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var demoIncidents = []seedIncident{
	{
		title:           "Salesforce API Gateway 502 Errors Spike",
		description:     "Salesforce integration gateway returning 502 errors at 15x normal rate. Customer-facing flows affected including order processing and account lookups. Multiple regions impacted.",
		source:          "Salesforce",
		classification:  "sev1",
		confidence:      0.96,
		status:          "escalated",
		priority:        "critical",
		assignmentGroup: "Platform Engineering",
		escalationAction: "pagerduty-escalate",
		aiReasoning:     "High error rate (502) across multiple regions affecting customer-facing operations. Pattern matches historical SEV1 incidents. Revenue-impacting with broad blast radius. Two independent signals confirmed: CloudWatch error rate alarm + Splunk error log correlation.",
		correlationID:   "CID-2026-0217-001",
		snowID:          "INC0042891",
		pdID:            "PD-2026-8834",
		mimID:           "MIM-2026-012",
		rawPayload:      `{"error_code":502,"regions":["us-east-1","eu-west-1"],"error_rate":"15x baseline","first_seen":"2026-02-17T08:23:00Z"}`,
		ageHours:        3,
	},
	{
		title:           "SnapLogic Pipeline Memory Leak Detection",
		description:     "Data integration pipeline 'CRM-Sync-Prod' showing gradual memory increase. Currently at 87% heap utilization with projected OOM in 4 hours.",
		source:          "SnapLogic",
		classification:  "high",
		confidence:      0.89,
		status:          "triaging",
		priority:        "high",
		assignmentGroup: "Integration Team",
		escalationAction: "servicenow-create",
		aiReasoning:     "Memory utilization trending upward with consistent gradient. Historical pattern analysis shows similar behavior led to OOM crash twice in last 90 days. Proactive intervention recommended before threshold breach.",
		correlationID:   "CID-2026-0217-002",
		snowID:          "INC0042892",
		rawPayload:      `{"pipeline":"CRM-Sync-Prod","heap_pct":87,"trend":"increasing","projected_oom":"4h"}`,
		ageHours:        2,
	},
	{
		title:           "AWS Lambda Throttling in Payment Service",
		description:     "Payment processing Lambda functions hitting concurrent execution limits. Approximately 12% of invocations throttled in last 30 minutes.",
		source:          "AWS CloudWatch",
		classification:  "high",
		confidence:      0.92,
		status:          "open",
		priority:        "high",
		assignmentGroup: "Cloud Infrastructure",
		escalationAction: "pagerduty-escalate",
		aiReasoning:     "Lambda throttling at 12% indicates capacity concern for payment-critical path. Revenue impact likely if sustained. Correlation with increased order volume from marketing campaign launch at 14:00 UTC.",
		correlationID:   "CID-2026-0217-003",
		pdID:            "PD-2026-8835",
		rawPayload:      `{"function":"payment-processor-prod","throttle_pct":12,"concurrent_executions":1000,"region":"us-east-1"}`,
		ageHours:        1.5,
	},
	{
		title:           "AEM Publish Queue Backlog Growing",
		description:     "Content publish queue for production site showing 450+ pending items. Normal baseline is under 20. Author environment unaffected.",
		source:          "Adobe Experience Manager",
		classification:  "medium",
		confidence:      0.78,
		status:          "open",
		priority:        "medium",
		assignmentGroup: "Content Platform",
		escalationAction: "servicenow-create",
		aiReasoning:     "Publish queue backlog is significant but not yet impacting live site. Could indicate dispatcher or replication agent issue. Moderate confidence due to lack of error logs correlating with queue growth.",
		correlationID:   "CID-2026-0217-004",
		snowID:          "INC0042893",
		rawPayload:      `{"queue_depth":450,"baseline":20,"environment":"publish-prod"}`,
		ageHours:        1,
	},
	{
		title:           "Splunk Forwarder Heartbeat Loss - DC2",
		description:     "Universal forwarder fleet in data center 2 showing 8 out of 45 forwarders with missed heartbeats in last 15 minutes.",
		source:          "Splunk",
		classification:  "medium",
		confidence:      0.82,
		status:          "triaging",
		priority:        "medium",
		assignmentGroup: "Observability Team",
		escalationAction: "servicenow-create",
		aiReasoning:     "Partial forwarder loss (18%) in single data center. Not yet impacting log completeness significantly but indicates potential network or infrastructure issue in DC2. Similar pattern preceded DC2 network partition incident last quarter.",
		correlationID:   "CID-2026-0217-005",
		snowID:          "INC0042894",
		rawPayload:      `{"dc":"DC2","missing_forwarders":8,"total_forwarders":45,"duration_min":15}`,
		ageHours:        0.5,
	},
	{
		title:           "CloudWatch Billing Alarm - Development Account",
		description:     "AWS billing alarm triggered for development account. Current month spend at $2,400 against $2,000 budget threshold.",
		source:          "AWS CloudWatch",
		classification:  "low",
		confidence:      0.95,
		status:          "resolved",
		priority:        "low",
		assignmentGroup: "FinOps",
		escalationAction: "servicenow-create",
		aiReasoning:     "Billing threshold exceeded in non-production account. High confidence classification as low priority. No operational impact. Likely caused by left-running resources from load testing.",
		correlationID:   "CID-2026-0217-006",
		snowID:          "INC0042895",
		rawPayload:      `{"account":"dev-123456","spend":2400,"budget":2000,"currency":"USD"}`,
		ageHours:        5,
	},
	{
		title:          "New Relic Synthetic Monitor Timeout - Status Page",
		description:    "External synthetic monitor for public status page timing out intermittently. 3 of 12 checks failed in last hour.",
		source:         "New Relic",
		classification: "noise",
		confidence:     0.88,
		status:         "suppressed",
		priority:       "low",
		escalationAction: "suppress",
		aiReasoning:    "Intermittent synthetic failures (25%) likely transient network issue or monitor location-specific. Status page backend is healthy per internal checks. Previous occurrences auto-resolved. Suppressing per noise policy.",
		correlationID:  "CID-2026-0217-007",
		rawPayload:     `{"monitor":"status-page-check","failures":3,"total":12,"locations":["us-west","eu-central"]}`,
		ageHours:       4,
	},
	{
		title:           "Salesforce Bulk API Rate Limit Approaching",
		description:     "Bulk API usage at 82% of daily allocation. Data sync jobs consuming more API calls than projected.",
		source:          "Salesforce",
		classification:  "low",
		confidence:      0.91,
		status:          "human-review",
		priority:        "medium",
		assignmentGroup: "Salesforce Admin",
		escalationAction: "human-review",
		aiReasoning:     "API rate approaching limit but not yet impacted. Classification as low severity but routing to human review because action requires business decision on which sync jobs to deprioritize. AI cannot make business priority calls.",
		correlationID:   "CID-2026-0217-008",
		rawPayload:      `{"api_usage_pct":82,"daily_limit":100000,"current_calls":82000}`,
		ageHours:        2.5,
	},
}
