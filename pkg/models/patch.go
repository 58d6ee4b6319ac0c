package models

import (
	"encoding/json"
	"time"
)

// Optional distinguishes an absent JSON field from an explicit null.
// Absent leaves the target unchanged; null clears an optional condition.
type Optional[T any] struct {
	Present bool
	Null    bool
	Value   T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Present = true
	if string(b) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

func applyOptional[T any](dst **T, o Optional[T]) {
	if !o.Present {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.Value
	*dst = &v
}

// EscalationRulePatch is a partial update; unspecified fields are left
// unchanged and UpdatedAt is bumped atomically with the merge.
type EscalationRulePatch struct {
	Name                    *string           `json:"name,omitempty"`
	Description             *string           `json:"description,omitempty"`
	Priority                *int              `json:"priority,omitempty"`
	Enabled                 *bool             `json:"enabled,omitempty"`
	ConditionClassification Optional[string]  `json:"conditionClassification"`
	ConditionSource         Optional[string]  `json:"conditionSource"`
	ConditionMinConfidence  Optional[float64] `json:"conditionMinConfidence"`
	ConditionMaxConfidence  Optional[float64] `json:"conditionMaxConfidence"`
	ConditionPriority       Optional[string]  `json:"conditionPriority"`
	ActionType              *string           `json:"actionType,omitempty"`
	ActionTarget            *string           `json:"actionTarget,omitempty"`
	ActionConfig            json.RawMessage   `json:"actionConfig,omitempty"`
}

func (p EscalationRulePatch) Apply(r *EscalationRule) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	applyOptional(&r.ConditionClassification, p.ConditionClassification)
	applyOptional(&r.ConditionSource, p.ConditionSource)
	applyOptional(&r.ConditionMinConfidence, p.ConditionMinConfidence)
	applyOptional(&r.ConditionMaxConfidence, p.ConditionMaxConfidence)
	applyOptional(&r.ConditionPriority, p.ConditionPriority)
	if p.ActionType != nil {
		r.ActionType = *p.ActionType
	}
	if p.ActionTarget != nil {
		r.ActionTarget = *p.ActionTarget
	}
	if p.ActionConfig != nil {
		r.ActionConfig = p.ActionConfig
	}
}

type GatingRulePatch struct {
	Name                 *string  `json:"name,omitempty"`
	Description          *string  `json:"description,omitempty"`
	Enabled              *bool    `json:"enabled,omitempty"`
	ActionType           *string  `json:"actionType,omitempty"`
	MinConfidence        *float64 `json:"minConfidence,omitempty"`
	RequireHumanApproval *bool    `json:"requireHumanApproval,omitempty"`
	ApprovalTimeout      *int     `json:"approvalTimeout,omitempty"`
	FallbackAction       *string  `json:"fallbackAction,omitempty"`
}

func (p GatingRulePatch) Apply(r *GatingRule) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.ActionType != nil {
		r.ActionType = *p.ActionType
	}
	if p.MinConfidence != nil {
		r.MinConfidence = *p.MinConfidence
	}
	if p.RequireHumanApproval != nil {
		r.RequireHumanApproval = *p.RequireHumanApproval
	}
	if p.ApprovalTimeout != nil {
		r.ApprovalTimeout = *p.ApprovalTimeout
	}
	if p.FallbackAction != nil {
		r.FallbackAction = *p.FallbackAction
	}
}

type SuppressionRulePatch struct {
	Name                  *string             `json:"name,omitempty"`
	Description           *string             `json:"description,omitempty"`
	Enabled               *bool               `json:"enabled,omitempty"`
	SourcePattern         Optional[string]    `json:"sourcePattern"`
	TitlePattern          Optional[string]    `json:"titlePattern"`
	ClassificationPattern Optional[string]    `json:"classificationPattern"`
	TimeWindowStart       Optional[string]    `json:"timeWindowStart"`
	TimeWindowEnd         Optional[string]    `json:"timeWindowEnd"`
	ExpiresAt             Optional[time.Time] `json:"expiresAt"`
}

func (p SuppressionRulePatch) Apply(r *SuppressionRule) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	applyOptional(&r.SourcePattern, p.SourcePattern)
	applyOptional(&r.TitlePattern, p.TitlePattern)
	applyOptional(&r.ClassificationPattern, p.ClassificationPattern)
	applyOptional(&r.TimeWindowStart, p.TimeWindowStart)
	applyOptional(&r.TimeWindowEnd, p.TimeWindowEnd)
	applyOptional(&r.ExpiresAt, p.ExpiresAt)
}

type DecisionMatrixPatch struct {
	Severity       *string `json:"severity,omitempty"`
	Description    *string `json:"description,omitempty"`
	CreateIncident *bool   `json:"createIncident,omitempty"`
	TriggerMim     *bool   `json:"triggerMim,omitempty"`
	PageOncall     *bool   `json:"pageOncall,omitempty"`
	NRSignal       *string `json:"nrSignal,omitempty"`
	ExampleSources *string `json:"exampleSources,omitempty"`
	Criteria       *string `json:"criteria,omitempty"`
	SortOrder      *int    `json:"sortOrder,omitempty"`
}

func (p DecisionMatrixPatch) Apply(e *DecisionMatrixEntry) {
	if p.Severity != nil {
		e.Severity = *p.Severity
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.CreateIncident != nil {
		e.CreateIncident = *p.CreateIncident
	}
	if p.TriggerMim != nil {
		e.TriggerMim = *p.TriggerMim
	}
	if p.PageOncall != nil {
		e.PageOncall = *p.PageOncall
	}
	if p.NRSignal != nil {
		e.NRSignal = *p.NRSignal
	}
	if p.ExampleSources != nil {
		e.ExampleSources = *p.ExampleSources
	}
	if p.Criteria != nil {
		e.Criteria = *p.Criteria
	}
	if p.SortOrder != nil {
		e.SortOrder = *p.SortOrder
	}
}

// PolicyRulePatch deliberately exposes only the enable toggle: policy
// text is seeded, not edited over the API.
type PolicyRulePatch struct {
	Enabled *bool `json:"enabled,omitempty"`
}

func (p PolicyRulePatch) Apply(r *PolicyRule) {
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
}

type SettingsPatch struct {
	MaturityLevel       *int     `json:"maturityLevel,omitempty"`
	AutoEscalation      *bool    `json:"autoEscalation,omitempty"`
	MimGating           *bool    `json:"mimGating,omitempty"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty"`
	DeduplicationWindow *int     `json:"deduplicationWindow,omitempty"`
}

func (p SettingsPatch) Apply(s *Settings) {
	if p.MaturityLevel != nil {
		s.MaturityLevel = *p.MaturityLevel
	}
	if p.AutoEscalation != nil {
		s.AutoEscalation = *p.AutoEscalation
	}
	if p.MimGating != nil {
		s.MimGating = *p.MimGating
	}
	if p.ConfidenceThreshold != nil {
		s.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.DeduplicationWindow != nil {
		s.DeduplicationWindow = *p.DeduplicationWindow
	}
}

// IncidentPatch covers the operator-editable incident fields.
type IncidentPatch struct {
	Status          *string `json:"status,omitempty"`
	Classification  *string `json:"classification,omitempty"`
	Priority        *string `json:"priority,omitempty"`
	AssignmentGroup *string `json:"assignmentGroup,omitempty"`
}

func (p IncidentPatch) Apply(inc *Incident) {
	if p.Status != nil {
		inc.Status = *p.Status
	}
	if p.Classification != nil {
		inc.Classification = *p.Classification
	}
	if p.Priority != nil {
		inc.Priority = *p.Priority
	}
	if p.AssignmentGroup != nil {
		inc.AssignmentGroup = *p.AssignmentGroup
	}
}
