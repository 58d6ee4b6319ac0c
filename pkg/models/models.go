package models

import (
	"encoding/json"
	"time"
)

// Classification labels assigned by the external classifier.
const (
	ClassNoise        = "noise"
	ClassLow          = "low"
	ClassMedium       = "medium"
	ClassHigh         = "high"
	ClassSev1         = "sev1"
	ClassUnclassified = "unclassified"
)

// Incident status values.
const (
	StatusOpen        = "open"
	StatusTriaging    = "triaging"
	StatusEscalated   = "escalated"
	StatusResolved    = "resolved"
	StatusSuppressed  = "suppressed"
	StatusHumanReview = "human-review"
)

// Priority tiers.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Downstream action types consumed by the external dispatchers.
const (
	ActionPagerDuty   = "pagerduty-escalate"
	ActionServiceNow  = "servicenow-create"
	ActionSlackNotify = "slack-notify"
	ActionMimTrigger  = "mim-trigger"
	ActionHumanReview = "human-review"
	ActionSuppress    = "suppress"
)

// Gating fallback actions.
const (
	FallbackQueue        = "queue"
	FallbackHumanReview  = "human-review"
	FallbackSkip         = "skip"
	FallbackEscalate     = "escalate"
	FallbackLog          = "log"
	FallbackAutoSuppress = "auto-suppress"
)

// CanTransition reports whether an incident status change is permitted.
// Classification is deliberately unconstrained; status is not.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusOpen:
		return to == StatusTriaging || to == StatusEscalated || to == StatusResolved ||
			to == StatusSuppressed || to == StatusHumanReview
	case StatusTriaging:
		return to == StatusEscalated || to == StatusResolved || to == StatusSuppressed || to == StatusHumanReview
	case StatusEscalated:
		return to == StatusResolved
	case StatusHumanReview:
		return to == StatusTriaging || to == StatusEscalated || to == StatusResolved || to == StatusSuppressed
	case StatusSuppressed:
		return to == StatusOpen || to == StatusResolved
	default:
		return false
	}
}

// Alert is a raw signal from a monitoring source, before suppression
// and classification. The feed's authenticity is not verified here.
type Alert struct {
	Source      string          `json:"source"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
}

// Classification is the external classifier's output for an alert.
// Signals counts independently corroborating monitoring sources and
// feeds the two-signal MIM confirmation gate.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Priority   string  `json:"priority"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Signals    int     `json:"signals"`
}

type Incident struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Source           string          `json:"source"`
	Classification   string          `json:"classification"`
	Confidence       float64         `json:"confidence"`
	Status           string          `json:"status"`
	Priority         string          `json:"priority"`
	AssignmentGroup  string          `json:"assignmentGroup,omitempty"`
	EscalationAction string          `json:"escalationAction,omitempty"`
	AIReasoning      string          `json:"aiReasoning,omitempty"`
	CorrelationID    string          `json:"correlationId"`
	SnowID           string          `json:"snowId,omitempty"`
	PdID             string          `json:"pdId,omitempty"`
	MimID            string          `json:"mimId,omitempty"`
	RawPayload       json.RawMessage `json:"rawPayload,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// AuditEntry is an append-only record. IncidentID is a weak reference:
// it may point at an incident that has since been deleted.
type AuditEntry struct {
	ID               string          `json:"id"`
	IncidentID       string          `json:"incidentId,omitempty"`
	Action           string          `json:"action"`
	Actor            string          `json:"actor"`
	Detail           string          `json:"detail"`
	EvidencePointers json.RawMessage `json:"evidencePointers,omitempty"`
	CorrelationID    string          `json:"correlationId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// EscalationRule routes classified incidents to actions. Absent
// condition fields are wildcards; matching lives in pkg/escalate.
type EscalationRule struct {
	ID                      string          `json:"id"`
	Name                    string          `json:"name"`
	Description             string          `json:"description"`
	Priority                int             `json:"priority"`
	Enabled                 bool            `json:"enabled"`
	ConditionClassification *string         `json:"conditionClassification,omitempty"`
	ConditionSource         *string         `json:"conditionSource,omitempty"`
	ConditionMinConfidence  *float64        `json:"conditionMinConfidence,omitempty"`
	ConditionMaxConfidence  *float64        `json:"conditionMaxConfidence,omitempty"`
	ConditionPriority       *string         `json:"conditionPriority,omitempty"`
	ActionType              string          `json:"actionType"`
	ActionTarget            string          `json:"actionTarget"`
	ActionConfig            json.RawMessage `json:"actionConfig,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

type GatingRule struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	Enabled              bool      `json:"enabled"`
	ActionType           string    `json:"actionType"`
	MinConfidence        float64   `json:"minConfidence"`
	RequireHumanApproval bool      `json:"requireHumanApproval"`
	ApprovalTimeout      int       `json:"approvalTimeout"`
	FallbackAction       string    `json:"fallbackAction"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

type SuppressionRule struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Description           string     `json:"description"`
	Enabled               bool       `json:"enabled"`
	SourcePattern         *string    `json:"sourcePattern,omitempty"`
	TitlePattern          *string    `json:"titlePattern,omitempty"`
	ClassificationPattern *string    `json:"classificationPattern,omitempty"`
	TimeWindowStart       *string    `json:"timeWindowStart,omitempty"`
	TimeWindowEnd         *string    `json:"timeWindowEnd,omitempty"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	SuppressedCount       int64      `json:"suppressedCount"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// ActiveAt reports whether the rule participates in suppression:
// enabled, and either no expiry or an expiry still in the future.
func (r SuppressionRule) ActiveAt(now time.Time) bool {
	if !r.Enabled {
		return false
	}
	if r.ExpiresAt == nil {
		return true
	}
	return now.Before(*r.ExpiresAt)
}

type DecisionMatrixEntry struct {
	ID             string    `json:"id"`
	Severity       string    `json:"severity"`
	Description    string    `json:"description"`
	CreateIncident bool      `json:"createIncident"`
	TriggerMim     bool      `json:"triggerMim"`
	PageOncall     bool      `json:"pageOncall"`
	NRSignal       string    `json:"nrSignal"`
	ExampleSources string    `json:"exampleSources"`
	Criteria       string    `json:"criteria"`
	SortOrder      int       `json:"sortOrder"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Policy rule categories shown on the dashboard policy board.
const (
	PolicyCategoryEscalation  = "escalation"
	PolicyCategoryGating      = "gating"
	PolicyCategorySuppression = "suppression"
	PolicyCategoryValidation  = "validation"
)

// PolicyRule is a display-level policy: a human-readable condition and
// the action it authorizes. Operators toggle these on the dashboard;
// the evaluators read the dedicated rule tables, not this one.
type PolicyRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Condition   string    `json:"condition"`
	Action      string    `json:"action"`
	Threshold   *float64  `json:"threshold,omitempty"`
	Enabled     bool      `json:"enabled"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Event source connection states.
const (
	SourceActive   = "active"
	SourceInactive = "inactive"
	SourceDegraded = "degraded"
)

// EventSource is a monitoring feed the pipeline ingests from, with its
// liveness and volume counters for the dashboard.
type EventSource struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	LastHeartbeat   *time.Time `json:"lastHeartbeat,omitempty"`
	EventsProcessed int64      `json:"eventsProcessed"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Settings is the singleton system configuration. It is threaded
// explicitly through the engine entry point, never read ambiently.
type Settings struct {
	MaturityLevel       int     `json:"maturityLevel"`
	AutoEscalation      bool    `json:"autoEscalation"`
	MimGating           bool    `json:"mimGating"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	DeduplicationWindow int     `json:"deduplicationWindow"`
}

// DefaultSettings mirrors the most conservative shipping configuration:
// maturity 0 means nothing auto-executes.
func DefaultSettings() Settings {
	return Settings{
		MaturityLevel:       0,
		AutoEscalation:      false,
		MimGating:           true,
		ConfidenceThreshold: 0.85,
		DeduplicationWindow: 300,
	}
}

// RuleSnapshot is the consistent rule state an evaluation reads once.
type RuleSnapshot struct {
	Escalation  []EscalationRule
	Gating      []GatingRule
	Suppression []SuppressionRule
	Matrix      []DecisionMatrixEntry
}
