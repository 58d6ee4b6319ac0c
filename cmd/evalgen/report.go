package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type policyChange struct {
	ID          string `json:"change_id"`
	Timestamp   string `json:"timestamp"`
	Day         int    `json:"day"`
	RuleType    string `json:"rule_type"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Operator    string `json:"operator"`
}

type scheduleEntry struct {
	Day         int
	RuleType    string
	Action      string
	Description string
}

// policySchedule is the scripted operator activity across the window:
// the rule edits an on-call team made while the engine ran, showing the
// policy surface changes without touching the scoring model.
var policySchedule = []scheduleEntry{
	{1, "suppression", "add", "Add suppression for CloudFront origin timeout noise"},
	{2, "escalation", "add", "Add escalation rule for multi-source outage correlation"},
	{3, "gating", "modify", "Lower MIM declaration trust threshold from 0.90 to 0.85"},
	{4, "suppression", "add", "Suppress Splunk forwarder connectivity during maintenance"},
	{5, "escalation", "modify", "Reorder P2 escalation rules priority"},
	{6, "decision_matrix", "modify", "Enable Slack notification for P3 incidents"},
	{7, "suppression", "modify", "Extend CloudFront suppression time window"},
	{8, "escalation", "add", "Add escalation for Datadog anomaly alerts"},
	{9, "gating", "modify", "Adjust P1 paging gating threshold to 0.92"},
	{10, "suppression", "add", "Suppress New Relic synthetic monitor failures during deploy windows"},
	{11, "escalation", "modify", "Add confidence range condition to P1 escalation"},
	{12, "gating", "add", "Add gating rule for auto-MIM declaration"},
	{13, "suppression", "add", "Suppress known-benign S3 bucket access denied alerts"},
	{14, "decision_matrix", "modify", "Toggle MIM off for P2 Datadog source"},
	{15, "escalation", "add", "Add escalation for security correlation events"},
	{16, "suppression", "modify", "Update regex for Splunk log ingestion suppression"},
	{17, "gating", "modify", "Increase gating timeout from 10min to 15min"},
	{18, "escalation", "modify", "Modify P3 escalation to include Slack notify"},
	{19, "suppression", "add", "Suppress ECS expected task recycling events"},
	{20, "gating", "modify", "Lower conditional threshold for off-hours"},
	{21, "escalation", "add", "Add P1 direct-page escalation for aws-cloudwatch"},
	{21, "decision_matrix", "modify", "Enable page for P2 during business hours"},
	{22, "suppression", "modify", "Set expiry date on maintenance suppression rules"},
	{23, "escalation", "modify", "Add source=splunk condition to security escalation"},
	{24, "gating", "modify", "Tighten MIM gating to T>=0.93"},
	{24, "suppression", "add", "Suppress DynamoDB throttle alerts under 100 events"},
	{25, "escalation", "add", "Add cross-source P1 correlation escalation"},
	{26, "suppression", "modify", "Narrow time window on deploy suppression rules"},
	{26, "gating", "modify", "Add fallback=auto-suppress for stale gating approvals"},
	{27, "decision_matrix", "modify", "Disable MIM for P3 (was accidentally enabled day 6)"},
	{28, "escalation", "modify", "Adjust priority ordering for NewRelic escalations"},
	{28, "suppression", "add", "Suppress browser JS error noise from staging domain"},
	{29, "escalation", "add", "Add escalation for workload health degradation"},
	{29, "gating", "add", "Add gating for auto-page on P2 security events"},
	{29, "suppression", "modify", "Update cart-abandonment suppression pattern"},
	{30, "decision_matrix", "modify", "Final matrix review: confirm P1=INC+MIM+Page"},
	{30, "escalation", "modify", "Final escalation rule audit and priority cleanup"},
	{30, "decision_matrix", "modify", "Lock P4=log-only, remove accidental notify"},
	{30, "escalation", "add", "Add catch-all low-priority escalation for unmatched events"},
	{30, "escalation", "modify", "Remove expired suppression-to-escalation migration rules"},
	{30, "gating", "modify", "Final gating threshold review and documentation"},
}

func writeArtifacts(dir string, w Workload, run *runResult) error {
	if err := writeJSON(filepath.Join(dir, "daily_metrics.json"), run.daily); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "policy_changes.json"), run.policyChanges); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "workload_config.json"), w); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "evaluation_summary.json"), buildSummary(w, run)); err != nil {
		return err
	}
	if err := writeAlertsCSV(filepath.Join(dir, "alerts.csv"), run.alerts); err != nil {
		return err
	}
	if err := writeDailyCSV(filepath.Join(dir, "daily_metrics.csv"), run.daily); err != nil {
		return err
	}
	return writePolicyCSV(filepath.Join(dir, "policy_changes.csv"), run.policyChanges)
}

type distribution struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type summary struct {
	Period struct {
		StartDate    string `json:"start_date"`
		DurationDays int    `json:"duration_days"`
	} `json:"evaluation_period"`
	Workload struct {
		TotalAlerts  int                     `json:"total_alerts"`
		PerDayAvg    int                     `json:"alerts_per_day_avg"`
		BySource     map[string]distribution `json:"source_distribution"`
		BySeverity   map[string]distribution `json:"severity_distribution"`
	} `json:"workload"`
	Observed struct {
		SuppressionRate float64 `json:"suppression_rate"`
		SuppressedCount int     `json:"suppressed_count"`
		GatingRate      float64 `json:"gating_rate"`
		GatedCount      int     `json:"gated_count"`
		LatencyP95US    int64   `json:"rule_evaluation_latency_p95_us"`
		PolicyChanges   int     `json:"policy_changes_total"`
		ByRuleType      map[string]int `json:"policy_changes_by_type"`
	} `json:"observed_metrics"`
}

func buildSummary(w Workload, run *runResult) summary {
	var s summary
	s.Period.StartDate = w.StartDate
	s.Period.DurationDays = w.DurationDays
	s.Workload.TotalAlerts = run.totalAlerts
	if w.DurationDays > 0 {
		s.Workload.PerDayAvg = run.totalAlerts / w.DurationDays
	}
	s.Workload.BySource = map[string]distribution{}
	for name, count := range run.bySource {
		s.Workload.BySource[name] = distribution{Count: count, Percentage: pct(count, run.totalAlerts)}
	}
	s.Workload.BySeverity = map[string]distribution{}
	for tier, count := range run.bySeverity {
		s.Workload.BySeverity[tier] = distribution{Count: count, Percentage: pct(count, run.totalAlerts)}
	}
	s.Observed.SuppressionRate = pct(run.totalSuppressed, run.totalAlerts)
	s.Observed.SuppressedCount = run.totalSuppressed
	s.Observed.GatingRate = pct(run.totalGated, run.totalAlerts)
	s.Observed.GatedCount = run.totalGated
	s.Observed.LatencyP95US = percentile(run.latencies, 0.95)
	s.Observed.PolicyChanges = len(run.policyChanges)
	s.Observed.ByRuleType = map[string]int{}
	for _, pc := range run.policyChanges {
		s.Observed.ByRuleType[pc.RuleType]++
	}
	return s
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeAlertsCSV(path string, alerts []alertTrace) error {
	header := []string{"alert_id", "timestamp", "day", "source", "severity", "title",
		"suppressed", "confidence", "trust_score", "behavior", "history", "env_factor",
		"result", "band", "gated", "action", "rule_evaluation_latency_us"}
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []string{
			a.ID, a.Timestamp, strconv.Itoa(a.Day), a.Source, a.Severity, a.Title,
			strconv.FormatBool(a.Suppressed),
			strconv.FormatFloat(a.Confidence, 'f', 3, 64),
			strconv.FormatFloat(a.TrustScore, 'f', 4, 64),
			strconv.FormatFloat(a.Behavior, 'f', 3, 64),
			strconv.FormatFloat(a.History, 'f', 3, 64),
			strconv.FormatFloat(a.EnvFactor, 'f', 2, 64),
			a.Result, a.Band, strconv.FormatBool(a.Gated), a.Action,
			strconv.FormatInt(a.LatencyUS, 10),
		})
	}
	return writeCSV(path, header, rows)
}

func writeDailyCSV(path string, daily []dayMetrics) error {
	header := []string{"day", "date", "total_alerts", "suppressed", "suppression_rate",
		"gated", "gating_rate", "processed", "latency_p50_us", "latency_p95_us"}
	rows := make([][]string, 0, len(daily))
	for _, d := range daily {
		rows = append(rows, []string{
			strconv.Itoa(d.Day), d.Date, strconv.Itoa(d.TotalAlerts),
			strconv.Itoa(d.Suppressed), strconv.FormatFloat(d.SuppressionRate, 'f', 1, 64),
			strconv.Itoa(d.Gated), strconv.FormatFloat(d.GatingRate, 'f', 1, 64),
			strconv.Itoa(d.Processed),
			strconv.FormatInt(d.LatencyP50US, 10), strconv.FormatInt(d.LatencyP95US, 10),
		})
	}
	return writeCSV(path, header, rows)
}

func writePolicyCSV(path string, changes []policyChange) error {
	header := []string{"change_id", "timestamp", "day", "rule_type", "action", "description", "operator"}
	rows := make([][]string, 0, len(changes))
	for _, pc := range changes {
		rows = append(rows, []string{
			pc.ID, pc.Timestamp, strconv.Itoa(pc.Day), pc.RuleType, pc.Action, pc.Description, pc.Operator,
		})
	}
	return writeCSV(path, header, rows)
}
