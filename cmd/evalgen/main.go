// evalgen replays a reproducible synthetic alert workload through the
// policy engine and writes the evaluation artifacts: per-alert traces,
// daily rollups, the operator policy-change log, and a summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tejasgit/zero-trust-agent/pkg/audit"
	"github.com/tejasgit/zero-trust-agent/pkg/engine"
	"github.com/tejasgit/zero-trust-agent/pkg/models"
	"github.com/tejasgit/zero-trust-agent/pkg/store"
	"github.com/tejasgit/zero-trust-agent/pkg/trust"
)

var logFatalf = log.Fatalf

func main() {
	configPath := flag.String("config", "", "YAML workload file (defaults baked in)")
	outDir := flag.String("out", "evaluation", "output directory")
	flag.Parse()

	workload, err := LoadWorkload(*configPath)
	if err != nil {
		logFatalf("evalgen: %v", err)
		return
	}
	if err := os.MkdirAll(*outDir, 0o750); err != nil {
		logFatalf("evalgen: %v", err)
		return
	}
	run, err := generate(context.Background(), workload)
	if err != nil {
		logFatalf("evalgen: %v", err)
		return
	}
	if err := writeArtifacts(*outDir, workload, run); err != nil {
		logFatalf("evalgen: %v", err)
		return
	}
	log.Printf("evalgen: %d alerts over %d days, %d suppressed, %d gated, %d policy changes",
		run.totalAlerts, workload.DurationDays, run.totalSuppressed, run.totalGated, len(run.policyChanges))
}

// alertTrace is one evaluated alert as it lands in alerts.csv.
type alertTrace struct {
	ID         string  `json:"alert_id"`
	Timestamp  string  `json:"timestamp"`
	Day        int     `json:"day"`
	Source     string  `json:"source"`
	Severity   string  `json:"severity"`
	Title      string  `json:"title"`
	Suppressed bool    `json:"suppressed"`
	Confidence float64 `json:"confidence"`
	TrustScore float64 `json:"trust_score"`
	Behavior   float64 `json:"behavior"`
	History    float64 `json:"history"`
	EnvFactor  float64 `json:"env_factor"`
	Result     string  `json:"result"`
	Band       string  `json:"band"`
	Gated      bool    `json:"gated"`
	Action     string  `json:"action"`
	LatencyUS  int64   `json:"rule_evaluation_latency_us"`
}

type dayMetrics struct {
	Day             int     `json:"day"`
	Date            string  `json:"date"`
	TotalAlerts     int     `json:"total_alerts"`
	Suppressed      int     `json:"suppressed"`
	SuppressionRate float64 `json:"suppression_rate"`
	Gated           int     `json:"gated"`
	GatingRate      float64 `json:"gating_rate"`
	Processed       int     `json:"processed"`
	LatencyP50US    int64   `json:"latency_p50_us"`
	LatencyP95US    int64   `json:"latency_p95_us"`
}

type runResult struct {
	alerts          []alertTrace
	daily           []dayMetrics
	policyChanges   []policyChange
	totalAlerts     int
	totalSuppressed int
	totalGated      int
	latencies       []int64
	bySource        map[string]int
	bySeverity      map[string]int
}

// scriptedSignals feeds the engine the per-alert trust factors the
// workload sampled. The generator evaluates alerts one at a time, so a
// mutable struct is fine.
type scriptedSignals struct {
	behavior, history, env float64
}

func (s *scriptedSignals) Behavior(string) float64       { return s.behavior }
func (s *scriptedSignals) History(string) float64        { return s.history }
func (s *scriptedSignals) Environment(time.Time) float64 { return s.env }

func generate(ctx context.Context, w Workload) (*runResult, error) {
	start, err := time.Parse(time.RFC3339, w.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start date: %w", err)
	}
	r := newRNG(w.Seed)
	sig := &scriptedSignals{}

	st := store.NewMemoryStore()
	if err := seedEngineRules(ctx, st, w); err != nil {
		return nil, err
	}
	eng := &engine.Engine{
		Store:   st,
		Audit:   audit.NewMemorySink(),
		Signals: sig,
		// No cache and no limiter: the replay compresses 30 days into
		// seconds, so real-time dedup windows and breaker windows would
		// misfire.
	}

	run := &runResult{
		bySource:   map[string]int{},
		bySeverity: map[string]int{},
	}
	for day := 0; day < w.DurationDays; day++ {
		dayStart := start.Add(time.Duration(day) * 24 * time.Hour)
		alertsToday := r.intBetween(w.AlertsPerDayMin, w.AlertsPerDayMax)
		var daySuppressed, dayGated int
		dayLatencies := make([]int64, 0, alertsToday)

		for a := 0; a < alertsToday; a++ {
			src := w.Sources[a%len(w.Sources)]
			sev := r.pickSeverity(w.Severities)
			hour := r.intBetween(0, 23)
			minute := r.intBetween(0, 59)
			second := r.intBetween(0, 59)
			ts := dayStart.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second)
			title := strings.Replace(r.choice(src.Titles), "{n}", strconv.Itoa(r.intBetween(1, 12)), 1)

			confidence := round3(r.gaussian(w.ConfidenceMean, w.ConfidenceStddev))
			sig.behavior = round3(r.gaussian(w.BehaviorMean, w.BehaviorStddev))
			sig.history = round3(r.gaussian(w.HistoryMean, w.HistoryStddev))
			sig.env = envFactor(r, w, hour)

			alert := models.Alert{
				Source:    src.Name,
				Title:     title,
				Timestamp: ts,
			}
			cls := models.Classification{
				Label:      sev.Label,
				Confidence: confidence,
				Priority:   sev.Priority,
				Signals:    signalsFor(sev.Tier),
			}

			began := time.Now()
			out, err := eng.Evaluate(ctx, alert, cls)
			if err != nil {
				return nil, fmt.Errorf("day %d alert %d: %w", day+1, a, err)
			}
			latency := time.Since(began).Microseconds()

			suppressed := out.Result == engine.ResultSuppressed || out.Result == engine.ResultAutoSuppressed
			gated := out.Result == engine.ResultHumanReview || out.Result == engine.ResultAwaitingApproval
			if suppressed {
				daySuppressed++
				run.totalSuppressed++
			}
			if gated {
				dayGated++
				run.totalGated++
			}
			run.bySource[src.Name]++
			run.bySeverity[sev.Tier]++
			run.totalAlerts++
			dayLatencies = append(dayLatencies, latency)
			run.latencies = append(run.latencies, latency)

			run.alerts = append(run.alerts, alertTrace{
				ID:         uuid.NewString(),
				Timestamp:  ts.Format(time.RFC3339),
				Day:        day + 1,
				Source:     src.Name,
				Severity:   sev.Tier,
				Title:      title,
				Suppressed: suppressed,
				Confidence: confidence,
				TrustScore: round4(out.TrustScore),
				Behavior:   sig.behavior,
				History:    sig.history,
				EnvFactor:  sig.env,
				Result:     out.Result,
				Band:       out.Band,
				Gated:      gated,
				Action:     out.ActionType,
				LatencyUS:  latency,
			})
		}

		run.daily = append(run.daily, dayMetrics{
			Day:             day + 1,
			Date:            dayStart.Format("2006-01-02"),
			TotalAlerts:     alertsToday,
			Suppressed:      daySuppressed,
			SuppressionRate: pct(daySuppressed, alertsToday),
			Gated:           dayGated,
			GatingRate:      pct(dayGated, alertsToday),
			Processed:       alertsToday - daySuppressed,
			LatencyP50US:    percentile(dayLatencies, 0.50),
			LatencyP95US:    percentile(dayLatencies, 0.95),
		})
	}

	for _, pc := range policySchedule {
		changeAt := start.Add(time.Duration(pc.Day-1)*24*time.Hour + time.Duration(r.intBetween(8, 17))*time.Hour)
		run.policyChanges = append(run.policyChanges, policyChange{
			ID:          uuid.NewString(),
			Timestamp:   changeAt.Format(time.RFC3339),
			Day:         pc.Day,
			RuleType:    pc.RuleType,
			Action:      pc.Action,
			Description: pc.Description,
			Operator:    "ops-oncall@example.com",
		})
	}
	return run, nil
}

// envFactor mirrors the live environment scorer: maintenance windows
// early morning, rare mass-failure events, off-hours discount.
func envFactor(r *rng, w Workload, hour int) float64 {
	maintenance := hour >= 2 && hour <= 4 && r.next() < w.MaintenanceChance
	massFailure := r.next() < w.MassFailureChance
	switch {
	case maintenance:
		return trust.EnvMaintenance
	case massFailure:
		return trust.EnvMassFailure
	case hour < 6 || hour > 22:
		return trust.EnvOffHours
	default:
		return trust.EnvNormal
	}
}

// signalsFor gives sev1 tiers the two corroborating monitoring signals
// a real major incident would carry, so the MIM gate can open.
func signalsFor(tier string) int {
	if tier == "P1" {
		return 2
	}
	return 1
}

// seedEngineRules installs the standard rule set the evaluation runs
// against: the shipping escalation/gating rules and decision matrix,
// plus suppression rules covering two of the ten alert templates per
// source (a 20% suppression share of the uniform title draw).
func seedEngineRules(ctx context.Context, st store.Store, w Workload) error {
	maturity, autoEsc, mim := 3, true, true
	threshold, dedup := 0.85, 300
	if _, err := st.UpdateSettings(ctx, models.SettingsPatch{
		MaturityLevel:       &maturity,
		AutoEscalation:      &autoEsc,
		MimGating:           &mim,
		ConfidenceThreshold: &threshold,
		DeduplicationWindow: &dedup,
	}); err != nil {
		return err
	}

	matrix := []models.DecisionMatrixEntry{
		{Severity: "sev1", Description: "Critical business impact", CreateIncident: true, TriggerMim: true, PageOncall: true, SortOrder: 1},
		{Severity: "high", Description: "Major impact", CreateIncident: true, PageOncall: true, SortOrder: 2},
		{Severity: "medium", Description: "Moderate impact", CreateIncident: true, SortOrder: 3},
		{Severity: "low", Description: "Low impact", CreateIncident: true, SortOrder: 4},
		{Severity: "noise", Description: "No action required", SortOrder: 5},
	}
	for _, m := range matrix {
		if _, err := st.CreateMatrixEntry(ctx, m); err != nil {
			return err
		}
	}

	str := func(s string) *string { return &s }
	f64 := func(f float64) *float64 { return &f }
	escalations := []models.EscalationRule{
		{Name: "SEV1 Auto-Page", Priority: 10, Enabled: true, ConditionClassification: str("sev1"),
			ConditionMinConfidence: f64(0.90), ActionType: models.ActionPagerDuty, ActionTarget: "sre-oncall"},
		{Name: "High Severity ServiceNow INC", Priority: 20, Enabled: true, ConditionClassification: str("high"),
			ConditionMinConfidence: f64(0.80), ActionType: models.ActionServiceNow, ActionTarget: "platform-engineering"},
		{Name: "Medium Priority Slack Alert", Priority: 30, Enabled: true, ConditionClassification: str("medium"),
			ConditionMinConfidence: f64(0.70), ActionType: models.ActionSlackNotify, ActionTarget: "#incident-triage"},
		{Name: "Low Severity Slack Alert", Priority: 40, Enabled: true, ConditionClassification: str("low"),
			ActionType: models.ActionSlackNotify, ActionTarget: "#incident-triage"},
		{Name: "Low Confidence Human Review", Priority: 50, Enabled: true, ConditionMaxConfidence: f64(0.70),
			ActionType: models.ActionHumanReview, ActionTarget: "triage-queue"},
	}
	for _, r := range escalations {
		if _, err := st.CreateEscalationRule(ctx, r); err != nil {
			return err
		}
	}

	gates := []models.GatingRule{
		{Name: "MIM Activation Gate", Enabled: true, ActionType: models.ActionMimTrigger, MinConfidence: 0.92,
			RequireHumanApproval: true, ApprovalTimeout: 600, FallbackAction: models.FallbackQueue},
		{Name: "PagerDuty Page Gate", Enabled: true, ActionType: models.ActionPagerDuty, MinConfidence: 0.88,
			ApprovalTimeout: 300, FallbackAction: models.FallbackHumanReview},
		{Name: "ServiceNow INC Gate", Enabled: true, ActionType: models.ActionServiceNow, MinConfidence: 0.75,
			ApprovalTimeout: 900, FallbackAction: models.FallbackQueue},
		{Name: "Slack Notification Gate", Enabled: true, ActionType: models.ActionSlackNotify, MinConfidence: 0.60,
			FallbackAction: models.FallbackLog},
		{Name: "Human Review Gate", Enabled: true, ActionType: models.ActionHumanReview, MinConfidence: 0,
			FallbackAction: models.FallbackQueue},
	}
	for _, g := range gates {
		if _, err := st.CreateGatingRule(ctx, g); err != nil {
			return err
		}
	}

	suppressions := []models.SuppressionRule{
		{Name: "CloudWatch benign patterns", Enabled: true, SourcePattern: str("aws-cloudwatch"),
			TitlePattern: str("CloudFront origin timeout|S3 bucket access denied anomaly")},
		{Name: "Datadog benign patterns", Enabled: true, SourcePattern: str("datadog"),
			TitlePattern: str("Container restart loop detected|Log volume anomaly on auth-service")},
		{Name: "New Relic benign patterns", Enabled: true, SourcePattern: str("newrelic"),
			TitlePattern: str("Synthetic monitor failure|Infrastructure host not reporting")},
		{Name: "Splunk benign patterns", Enabled: true, SourcePattern: str("splunk"),
			TitlePattern: str("Log ingestion delay|Scheduled search failure")},
	}
	for _, s := range suppressions {
		if _, err := st.CreateSuppressionRule(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func round3(f float64) float64 { return float64(int(f*1000+0.5)) / 1000 }
func round4(f float64) float64 { return float64(int(f*10000+0.5)) / 10000 }

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(n)/float64(total)*1000+0.5)) / 10
}

func percentile(latencies []int64, p float64) int64 {
	if len(latencies) == 0 {
		return 0
	}
	vals := make([]int64, len(latencies))
	copy(vals, latencies)
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	idx := int(float64(len(vals)) * p)
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	return vals[idx]
}
