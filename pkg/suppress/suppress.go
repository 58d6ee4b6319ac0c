// Package suppress filters known-noise alerts before any classification
// cost is paid.
package suppress

import (
	"regexp"
	"time"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// Result of evaluating an alert against the suppression rules.
type Result struct {
	Suppressed bool
	RuleID     string
	RuleName   string
}

// Evaluate checks the alert against every active rule in the order the
// store returned them; the first full match wins. All conditions a rule
// specifies must hold, absent conditions are wildcards. The caller is
// responsible for incrementing the winning rule's counter atomically.
func Evaluate(alert models.Alert, classification string, rules []models.SuppressionRule, now time.Time) Result {
	for _, rule := range rules {
		if !rule.ActiveAt(now) {
			continue
		}
		if matches(rule, alert, classification) {
			return Result{Suppressed: true, RuleID: rule.ID, RuleName: rule.Name}
		}
	}
	return Result{}
}

func matches(rule models.SuppressionRule, alert models.Alert, classification string) bool {
	if rule.SourcePattern != nil && !patternMatch(*rule.SourcePattern, alert.Source) {
		return false
	}
	if rule.TitlePattern != nil && !patternMatch(*rule.TitlePattern, alert.Title) {
		return false
	}
	if rule.ClassificationPattern != nil && !patternMatch(*rule.ClassificationPattern, classification) {
		return false
	}
	if rule.TimeWindowStart != nil && rule.TimeWindowEnd != nil {
		if !inWindow(*rule.TimeWindowStart, *rule.TimeWindowEnd, alert.Timestamp) {
			return false
		}
	}
	return true
}

func patternMatch(pattern, value string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		// Invalid patterns are rejected at rule creation; a rule that
		// slipped through must never suppress anything.
		return false
	}
	return re.MatchString(value)
}

// inWindow checks the alert's time of day against [start,end), wrapping
// past midnight when end precedes start.
func inWindow(start, end string, at time.Time) bool {
	startMin, err := models.ParseClock(start)
	if err != nil {
		return false
	}
	endMin, err := models.ParseClock(end)
	if err != nil {
		return false
	}
	atMin := at.UTC().Hour()*60 + at.UTC().Minute()
	if startMin <= endMin {
		return atMin >= startMin && atMin < endMin
	}
	return atMin >= startMin || atMin < endMin
}
