package models

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidRule marks a rule definition rejected before persisting.
// Nothing is written when validation fails.
var ErrInvalidRule = errors.New("invalid rule definition")

// ErrInvalidTransition marks a status change the incident lifecycle
// does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

var clockRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ParseClock converts an HH:MM wall-clock string to minutes since midnight.
func ParseClock(s string) (int, error) {
	if !clockRe.MatchString(s) {
		return 0, fmt.Errorf("%w: time window %q is not HH:MM", ErrInvalidRule, s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	return h*60 + m, nil
}

func validConfidence(v float64) bool {
	return v >= 0 && v <= 1
}

func (r EscalationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: escalation rule name required", ErrInvalidRule)
	}
	if r.ActionType == "" {
		return fmt.Errorf("%w: escalation rule action type required", ErrInvalidRule)
	}
	if r.ConditionMinConfidence != nil && !validConfidence(*r.ConditionMinConfidence) {
		return fmt.Errorf("%w: conditionMinConfidence %v outside [0,1]", ErrInvalidRule, *r.ConditionMinConfidence)
	}
	if r.ConditionMaxConfidence != nil && !validConfidence(*r.ConditionMaxConfidence) {
		return fmt.Errorf("%w: conditionMaxConfidence %v outside [0,1]", ErrInvalidRule, *r.ConditionMaxConfidence)
	}
	if r.ConditionMinConfidence != nil && r.ConditionMaxConfidence != nil &&
		*r.ConditionMinConfidence > *r.ConditionMaxConfidence {
		return fmt.Errorf("%w: conditionMinConfidence exceeds conditionMaxConfidence", ErrInvalidRule)
	}
	return nil
}

func (r GatingRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: gating rule name required", ErrInvalidRule)
	}
	if r.ActionType == "" {
		return fmt.Errorf("%w: gating rule action type required", ErrInvalidRule)
	}
	if !validConfidence(r.MinConfidence) {
		return fmt.Errorf("%w: minConfidence %v outside [0,1]", ErrInvalidRule, r.MinConfidence)
	}
	if r.ApprovalTimeout < 0 {
		return fmt.Errorf("%w: approvalTimeout must not be negative", ErrInvalidRule)
	}
	if r.FallbackAction == "" {
		return fmt.Errorf("%w: gating rule fallback action required", ErrInvalidRule)
	}
	return nil
}

func (r SuppressionRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: suppression rule name required", ErrInvalidRule)
	}
	for _, pat := range []*string{r.SourcePattern, r.TitlePattern, r.ClassificationPattern} {
		if pat == nil {
			continue
		}
		if _, err := regexp.Compile(*pat); err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ErrInvalidRule, *pat, err)
		}
	}
	if (r.TimeWindowStart == nil) != (r.TimeWindowEnd == nil) {
		return fmt.Errorf("%w: time window requires both start and end", ErrInvalidRule)
	}
	if r.TimeWindowStart != nil {
		if _, err := ParseClock(*r.TimeWindowStart); err != nil {
			return err
		}
		if _, err := ParseClock(*r.TimeWindowEnd); err != nil {
			return err
		}
	}
	return nil
}

func (r PolicyRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: policy rule name required", ErrInvalidRule)
	}
	if r.Condition == "" {
		return fmt.Errorf("%w: policy rule condition required", ErrInvalidRule)
	}
	if r.Action == "" {
		return fmt.Errorf("%w: policy rule action required", ErrInvalidRule)
	}
	if r.Threshold != nil && !validConfidence(*r.Threshold) {
		return fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidRule, *r.Threshold)
	}
	return nil
}

func (s EventSource) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: event source name required", ErrInvalidRule)
	}
	if s.Type == "" {
		return fmt.Errorf("%w: event source type required", ErrInvalidRule)
	}
	if s.EventsProcessed < 0 {
		return fmt.Errorf("%w: eventsProcessed must not be negative", ErrInvalidRule)
	}
	return nil
}

func (e DecisionMatrixEntry) Validate() error {
	if e.Severity == "" {
		return fmt.Errorf("%w: decision matrix severity required", ErrInvalidRule)
	}
	return nil
}

func (s Settings) Validate() error {
	if s.MaturityLevel < 0 || s.MaturityLevel > 3 {
		return fmt.Errorf("%w: maturityLevel %d outside 0-3", ErrInvalidRule, s.MaturityLevel)
	}
	if !validConfidence(s.ConfidenceThreshold) {
		return fmt.Errorf("%w: confidenceThreshold %v outside [0,1]", ErrInvalidRule, s.ConfidenceThreshold)
	}
	if s.DeduplicationWindow < 60 || s.DeduplicationWindow > 900 {
		return fmt.Errorf("%w: deduplicationWindow %d outside 60-900 seconds", ErrInvalidRule, s.DeduplicationWindow)
	}
	return nil
}
