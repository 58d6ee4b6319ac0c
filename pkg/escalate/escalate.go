// Package escalate matches classified incidents against the
// priority-ordered escalation rules.
package escalate

import (
	"errors"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// ErrNoMatch means no enabled rule matched. The caller defaults to
// human review; the incident is never silently dropped.
var ErrNoMatch = errors.New("no escalation rule matched")

// Match returns the matching rule with the lowest priority integer.
// Ties break on creation time, then id, so repeated runs over the same
// snapshot always pick the same rule.
func Match(inc models.Incident, rules []models.EscalationRule) (models.EscalationRule, error) {
	var best models.EscalationRule
	found := false
	for _, rule := range rules {
		if !rule.Enabled || !conditionsHold(rule, inc) {
			continue
		}
		if !found || lessUrgent(best, rule) {
			best = rule
			found = true
		}
	}
	if !found {
		return models.EscalationRule{}, ErrNoMatch
	}
	return best, nil
}

// lessUrgent reports whether candidate should displace current.
func lessUrgent(current, candidate models.EscalationRule) bool {
	if candidate.Priority != current.Priority {
		return candidate.Priority < current.Priority
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.ID < current.ID
}

func conditionsHold(rule models.EscalationRule, inc models.Incident) bool {
	if rule.ConditionClassification != nil && *rule.ConditionClassification != inc.Classification {
		return false
	}
	if rule.ConditionSource != nil && *rule.ConditionSource != inc.Source {
		return false
	}
	if rule.ConditionMinConfidence != nil && inc.Confidence < *rule.ConditionMinConfidence {
		return false
	}
	if rule.ConditionMaxConfidence != nil && inc.Confidence > *rule.ConditionMaxConfidence {
		return false
	}
	if rule.ConditionPriority != nil && *rule.ConditionPriority != inc.Priority {
		return false
	}
	return true
}
