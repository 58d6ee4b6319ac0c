// Package engine runs the full policy pipeline for one alert:
// suppression, deduplication, trust scoring, matrix resolution,
// escalation matching, maturity clamping, gating, audit. It never calls
// a downstream system itself; it only decides and records.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tejasgit/zero-trust-agent/pkg/audit"
	"github.com/tejasgit/zero-trust-agent/pkg/escalate"
	"github.com/tejasgit/zero-trust-agent/pkg/gate"
	"github.com/tejasgit/zero-trust-agent/pkg/matrix"
	"github.com/tejasgit/zero-trust-agent/pkg/models"
	"github.com/tejasgit/zero-trust-agent/pkg/ratelimit"
	"github.com/tejasgit/zero-trust-agent/pkg/store"
	"github.com/tejasgit/zero-trust-agent/pkg/suppress"
	"github.com/tejasgit/zero-trust-agent/pkg/trust"
)

// Terminal results of one evaluation.
const (
	ResultSuppressed       = "suppressed"
	ResultDeduplicated     = "deduplicated"
	ResultAutoSuppressed   = "auto-suppressed"
	ResultHumanReview      = "human-review"
	ResultExecuted         = "executed"
	ResultAwaitingApproval = "awaiting-approval"
	ResultFallback         = "fallback"
)

// Audit actions the engine emits, one per terminal transition.
const (
	auditAlertSuppressed  = "alert_suppressed"
	auditAlertDeduped     = "alert_deduplicated"
	auditAutoSuppressed   = "decision_auto_suppressed"
	auditHumanReview      = "decision_human_review"
	auditExecuted         = "decision_executed"
	auditAwaitingApproval = "decision_awaiting_approval"
	auditFallback         = "decision_fallback"
	auditApprovalResolved = "approval_resolved"
)

const engineActor = "policy-engine"

// Signals supplies the non-classifier trust inputs. Implementations
// must return values in [0,1]; the engine does not re-clamp.
type Signals interface {
	Behavior(source string) float64
	History(source string) float64
	Environment(now time.Time) float64
}

// StaticSignals serves per-source reliability from fixed tables,
// falling back to the documented floors for unknown sources.
type StaticSignals struct {
	BehaviorBySource map[string]float64
	HistoryBySource  map[string]float64
	EnvFactor        float64
}

func (s StaticSignals) Behavior(source string) float64 {
	if v, ok := s.BehaviorBySource[source]; ok {
		return v
	}
	return trust.BehaviorFloor
}

func (s StaticSignals) History(source string) float64 {
	if v, ok := s.HistoryBySource[source]; ok {
		return v
	}
	return trust.HistoryUnknown
}

func (s StaticSignals) Environment(time.Time) float64 {
	if s.EnvFactor == 0 {
		return trust.EnvNormal
	}
	return s.EnvFactor
}

// Outcome is what one evaluation decided and why.
type Outcome struct {
	Result         string            `json:"result"`
	Reason         string            `json:"reason"`
	TrustScore     float64           `json:"trustScore"`
	Band           string            `json:"band"`
	Incident       *models.Incident  `json:"incident,omitempty"`
	EscalationRule string            `json:"escalationRule,omitempty"`
	ActionType     string            `json:"actionType,omitempty"`
	Suppression    *suppress.Result  `json:"suppression,omitempty"`
	Gate           *gate.Decision    `json:"gate,omitempty"`
	Approval       *gate.Approval    `json:"approval,omitempty"`
	Permissions    matrix.Permissions `json:"permissions"`
}

// Engine wires the evaluator packages to storage, the dedup cache, the
// escalation breaker and the approval ledger.
type Engine struct {
	Store     store.Store
	Cache     store.Cache
	Audit     audit.Sink
	Limiter   ratelimit.Limiter
	Signals   Signals
	Logger    *log.Logger
	AutoLimit int
	// OnDecision, when set, receives every terminal outcome after its
	// audit entry landed. Used for the dashboard stream.
	OnDecision func(Outcome)
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

func (e *Engine) signals() Signals {
	if e.Signals != nil {
		return e.Signals
	}
	return StaticSignals{}
}

// Evaluate runs one alert through the pipeline. The returned error is
// non-nil only when the decision could not be made or recorded; a
// suppressed or human-review outcome is a success.
func (e *Engine) Evaluate(ctx context.Context, alert models.Alert, cls models.Classification) (Outcome, error) {
	settings, err := e.Store.GetSettings(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load settings: %w", err)
	}
	snap, err := store.Snapshot(ctx, e.Store)
	if err != nil {
		return Outcome{}, fmt.Errorf("load rule snapshot: %w", err)
	}
	now := time.Now().UTC()
	correlationID := uuid.NewString()

	// Suppression runs before any other cost is paid.
	if sup := suppress.Evaluate(alert, cls.Label, snap.Suppression, now); sup.Suppressed {
		out := Outcome{
			Result:      ResultSuppressed,
			Reason:      fmt.Sprintf("matched suppression rule %q", sup.RuleName),
			Suppression: &sup,
		}
		done, err := e.finish(ctx, out, auditAlertSuppressed, correlationID, nil)
		if err != nil {
			return Outcome{}, err
		}
		// Counter moves only once the suppression is on the audit trail.
		if err := e.Store.IncrementSuppressed(ctx, sup.RuleID); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.logf("suppression counter %s: %v", sup.RuleID, err)
		}
		return done, nil
	}

	// Deduplication window. The signature key either claims the window
	// or finds it already claimed.
	if e.Cache != nil && settings.DeduplicationWindow > 0 {
		ttl := time.Duration(settings.DeduplicationWindow) * time.Second
		first, err := e.Cache.SetNX(ctx, dedupKey(alert), correlationID, ttl)
		if err != nil {
			// Cache loss must not drop alerts; evaluation continues
			// without dedup.
			e.logf("dedup cache: %v", err)
		} else if !first {
			out := Outcome{
				Result: ResultDeduplicated,
				Reason: fmt.Sprintf("duplicate within %ds window", settings.DeduplicationWindow),
			}
			return e.finish(ctx, out, auditAlertDeduped, correlationID, nil)
		}
	}

	perms, err := matrix.Resolve(cls.Label, snap.Matrix)
	if err != nil {
		// Unknown severity fails closed into human review.
		inc := e.newIncident(alert, cls, correlationID, models.StatusHumanReview)
		out := Outcome{
			Result:   ResultHumanReview,
			Reason:   err.Error(),
			Incident: &inc,
		}
		return e.finish(ctx, out, auditHumanReview, correlationID, &inc)
	}

	sig := e.signals()
	score, band := trust.Decide(cls.Confidence, sig.Behavior(alert.Source), sig.History(alert.Source), sig.Environment(now))

	if !perms.CreateIncident {
		out := Outcome{
			Result:      ResultAutoSuppressed,
			Reason:      fmt.Sprintf("severity %q does not open incidents", cls.Label),
			TrustScore:  score,
			Band:        band,
			Permissions: perms,
		}
		return e.finish(ctx, out, auditAutoSuppressed, correlationID, nil)
	}

	inc := e.newIncident(alert, cls, correlationID, models.StatusOpen)

	decide := func(status, result, action, reason string) (Outcome, error) {
		inc.Status = status
		out := Outcome{
			Result:      result,
			Reason:      reason,
			TrustScore:  score,
			Band:        band,
			Incident:    &inc,
			Permissions: perms,
		}
		return e.finish(ctx, out, action, correlationID, &inc)
	}

	if band == trust.BandSuppress {
		return decide(models.StatusSuppressed, ResultAutoSuppressed, auditAutoSuppressed,
			fmt.Sprintf("trust score %.3f below automation floor", score))
	}
	if band == trust.BandHumanReview {
		reason := fmt.Sprintf("trust score %.3f requires human review", score)
		if trust.Anomalous(cls.Confidence) {
			reason = "classifier confidence 1.0 is anomalous"
		}
		return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview, reason)
	}

	// Global floor before any per-rule threshold.
	if cls.Confidence < settings.ConfidenceThreshold {
		return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
			fmt.Sprintf("confidence %.3f below global threshold %.3f", cls.Confidence, settings.ConfidenceThreshold))
	}
	if !settings.AutoEscalation {
		return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
			"automatic escalation disabled")
	}

	rule, err := escalate.Match(inc, snap.Escalation)
	if err != nil {
		return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
			"no escalation rule matched")
	}

	if !maturityPermits(settings.MaturityLevel, rule.ActionType) {
		inc.EscalationAction = rule.ActionType
		return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
			fmt.Sprintf("maturity level %d does not permit %s", settings.MaturityLevel, rule.ActionType))
	}

	if rule.ActionType == models.ActionMimTrigger {
		if !perms.TriggerMim {
			return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
				fmt.Sprintf("severity %q may not trigger a major incident", cls.Label))
		}
		if settings.MimGating && cls.Signals < 2 {
			return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
				fmt.Sprintf("major incident requires two corroborating signals, saw %d", cls.Signals))
		}
	}
	if rule.ActionType == models.ActionPagerDuty && !perms.PageOncall {
		return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
			fmt.Sprintf("severity %q may not page on-call", cls.Label))
	}

	// Escalation-storm breaker: too many automated escalations in the
	// window pauses automation entirely.
	if e.Limiter != nil {
		limit := e.AutoLimit
		if limit <= 0 {
			limit = ratelimit.DefaultAutoLimit
		}
		if d := e.Limiter.Allow("auto-escalation", limit); !d.Allowed {
			return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
				fmt.Sprintf("escalation breaker open: %d automated escalations in window", d.Count))
		}
	}

	gd, err := gate.Evaluate(rule.ActionType, cls.Confidence, snap.Gating)
	if err != nil {
		return decide(models.StatusHumanReview, ResultHumanReview, auditHumanReview,
			fmt.Sprintf("action %q is ungated", rule.ActionType))
	}

	inc.EscalationAction = rule.ActionType
	out := Outcome{
		TrustScore:     score,
		Band:           band,
		Incident:       &inc,
		EscalationRule: rule.ID,
		ActionType:     rule.ActionType,
		Gate:           &gd,
		Permissions:    perms,
	}
	switch gd.Outcome {
	case gate.OutcomeExecute:
		inc.Status = models.StatusEscalated
		out.Result = ResultExecuted
		out.Reason = gd.Reason
		return e.finish(ctx, out, auditExecuted, correlationID, &inc)
	case gate.OutcomeAwaitApproval:
		inc.Status = models.StatusTriaging
		out.Result = ResultAwaitingApproval
		out.Reason = gd.Reason
		return e.finish(ctx, out, auditAwaitingApproval, correlationID, &inc)
	default:
		inc.Status = fallbackStatus(gd.FallbackAction)
		out.Result = ResultFallback
		out.Reason = gd.Reason
		return e.finish(ctx, out, auditFallback, correlationID, &inc)
	}
}

// finish records the audit entry, then persists the incident (if any),
// then notifies. The audit append comes first: a transition that cannot
// be recorded does not happen.
func (e *Engine) finish(ctx context.Context, out Outcome, action, correlationID string, inc *models.Incident) (Outcome, error) {
	entry := models.AuditEntry{
		Action:        action,
		Actor:         engineActor,
		Detail:        out.Reason,
		CorrelationID: correlationID,
	}
	if inc != nil {
		entry.IncidentID = inc.ID
	}
	if ev := evidence(out); ev != nil {
		entry.EvidencePointers = ev
	}
	if _, err := e.Audit.Append(ctx, entry); err != nil {
		return Outcome{}, fmt.Errorf("record decision: %w", err)
	}
	if inc != nil {
		saved, err := e.Store.CreateIncident(ctx, *inc)
		if err != nil {
			return Outcome{}, fmt.Errorf("persist incident: %w", err)
		}
		*inc = saved
	}
	e.logf("decision result=%s reason=%q correlation=%s", out.Result, out.Reason, correlationID)
	if e.OnDecision != nil {
		e.OnDecision(out)
	}
	return out, nil
}

// ResolveApproval applies a ledger resolution to its incident: approved
// executes the action, rejection and expiry land on the gate fallback.
func (e *Engine) ResolveApproval(ctx context.Context, res gate.Resolution) error {
	status := models.StatusEscalated
	detail := fmt.Sprintf("approval granted by %s", res.Approver)
	switch res.Status {
	case gate.StatusRejected:
		status = fallbackStatus(res.FallbackAction)
		detail = fmt.Sprintf("approval rejected by %s, fallback %s", res.Approver, res.FallbackAction)
	case gate.StatusExpired:
		status = fallbackStatus(res.FallbackAction)
		detail = fmt.Sprintf("approval expired, fallback %s", res.FallbackAction)
	}
	entry := models.AuditEntry{
		IncidentID:    res.IncidentID,
		Action:        auditApprovalResolved,
		Actor:         engineActor,
		Detail:        detail,
	}
	if res.Approver != "" {
		entry.Actor = res.Approver
	}
	if _, err := e.Audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("record approval resolution: %w", err)
	}
	if res.IncidentID != "" {
		if _, err := e.Store.UpdateIncident(ctx, res.IncidentID, models.IncidentPatch{Status: &status}); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	e.logf("approval %s resolved status=%s incident=%s", res.ID, res.Status, res.IncidentID)
	return nil
}

func (e *Engine) newIncident(alert models.Alert, cls models.Classification, correlationID, status string) models.Incident {
	return models.Incident{
		ID:             uuid.NewString(),
		Title:          alert.Title,
		Description:    alert.Description,
		Source:         alert.Source,
		Classification: cls.Label,
		Confidence:     cls.Confidence,
		Status:         status,
		Priority:       cls.Priority,
		AIReasoning:    cls.Reasoning,
		CorrelationID:  correlationID,
		RawPayload:     alert.RawPayload,
	}
}

// maturityPermits clamps automation by rollout maturity: level 0 trusts
// nothing, 1 allows notifications and tickets, 2 adds paging, 3 adds
// major-incident triggers.
func maturityPermits(level int, actionType string) bool {
	switch actionType {
	case models.ActionSlackNotify, models.ActionServiceNow:
		return level >= 1
	case models.ActionPagerDuty:
		return level >= 2
	case models.ActionMimTrigger:
		return level >= 3
	case models.ActionHumanReview, models.ActionSuppress:
		return true
	default:
		return false
	}
}

func fallbackStatus(fallback string) string {
	switch fallback {
	case models.FallbackAutoSuppress:
		return models.StatusSuppressed
	case models.FallbackQueue, models.FallbackHumanReview, models.FallbackEscalate:
		return models.StatusHumanReview
	default: // skip, log
		return models.StatusOpen
	}
}

func dedupKey(alert models.Alert) string {
	sum := sha256.Sum256([]byte(alert.Source + "\x00" + alert.Title))
	return "dedup:" + hex.EncodeToString(sum[:])
}

func evidence(out Outcome) json.RawMessage {
	ev := map[string]any{
		"result":     out.Result,
		"trustScore": out.TrustScore,
		"band":       out.Band,
	}
	if out.EscalationRule != "" {
		ev["escalationRule"] = out.EscalationRule
	}
	if out.Suppression != nil {
		ev["suppressionRule"] = out.Suppression.RuleID
	}
	if out.Gate != nil {
		ev["gatingRule"] = out.Gate.RuleID
		ev["gateOutcome"] = out.Gate.Outcome
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	return raw
}
