// Package gate decides whether a proposed action executes immediately,
// waits for human sign-off, or falls back. An action with no governing
// gating rule never executes automatically.
package gate

import (
	"errors"
	"fmt"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// ErrUngatedAction means no enabled gating rule covers the action type.
var ErrUngatedAction = errors.New("no gating rule for action type")

const (
	OutcomeExecute       = "execute"
	OutcomeAwaitApproval = "await_approval"
	OutcomeFallback      = "fallback"
)

type Decision struct {
	Outcome        string
	RuleID         string
	RuleName       string
	TimeoutSeconds int
	FallbackAction string
	Reason         string
}

// Evaluate gates an action against the (expectedly unique) enabled rule
// for its type. Sub-threshold confidence falls back immediately; it
// never waits for approval.
func Evaluate(actionType string, confidence float64, rules []models.GatingRule) (Decision, error) {
	rule, ok := ruleFor(actionType, rules)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUngatedAction, actionType)
	}
	if confidence < rule.MinConfidence {
		return Decision{
			Outcome:        OutcomeFallback,
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			FallbackAction: rule.FallbackAction,
			Reason:         fmt.Sprintf("confidence %.3f below gate threshold %.3f", confidence, rule.MinConfidence),
		}, nil
	}
	if rule.RequireHumanApproval {
		return Decision{
			Outcome:        OutcomeAwaitApproval,
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			TimeoutSeconds: rule.ApprovalTimeout,
			FallbackAction: rule.FallbackAction,
			Reason:         fmt.Sprintf("gate %q requires human approval", rule.Name),
		}, nil
	}
	return Decision{
		Outcome:  OutcomeExecute,
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Reason:   fmt.Sprintf("confidence %.3f meets gate threshold %.3f", confidence, rule.MinConfidence),
	}, nil
}

// ruleFor returns the first enabled rule for the action type in store
// order. Uniqueness per action type is expected but not enforced by the
// model, so first-wins keeps the lookup deterministic.
func ruleFor(actionType string, rules []models.GatingRule) (models.GatingRule, bool) {
	for _, r := range rules {
		if r.Enabled && r.ActionType == actionType {
			return r, true
		}
	}
	return models.GatingRule{}, false
}
