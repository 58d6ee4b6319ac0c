package suppress

import (
	"testing"
	"time"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

func str(s string) *string { return &s }

func alertAt(hhmm string) models.Alert {
	ts, _ := time.Parse(time.RFC3339, "2026-02-17T"+hhmm+":00Z")
	return models.Alert{Source: "New Relic", Title: "Synthetic Monitor Timeout", Timestamp: ts}
}

func TestEvaluateAllConditionsMustHold(t *testing.T) {
	rule := models.SuppressionRule{
		ID: "r1", Name: "synthetic flaps", Enabled: true,
		SourcePattern: str("New Relic"),
		TitlePattern:  str("Synthetic Monitor.*Timeout"),
	}
	now := time.Now().UTC()

	res := Evaluate(alertAt("12:00"), "noise", []models.SuppressionRule{rule}, now)
	if !res.Suppressed || res.RuleID != "r1" || res.RuleName != "synthetic flaps" {
		t.Fatalf("expected suppression by r1, got %+v", res)
	}

	other := models.Alert{Source: "Splunk", Title: "Synthetic Monitor Timeout"}
	if res := Evaluate(other, "noise", []models.SuppressionRule{rule}, now); res.Suppressed {
		t.Fatalf("source mismatch must not suppress: %+v", res)
	}
}

func TestEvaluateAbsentConditionsAreWildcards(t *testing.T) {
	rule := models.SuppressionRule{ID: "r1", Name: "match all", Enabled: true}
	res := Evaluate(models.Alert{Source: "anything", Title: "whatever"}, "", []models.SuppressionRule{rule}, time.Now())
	if !res.Suppressed {
		t.Fatalf("rule with no conditions must match everything")
	}
}

func TestEvaluateClassificationPattern(t *testing.T) {
	rule := models.SuppressionRule{
		ID: "r1", Name: "low noise only", Enabled: true,
		ClassificationPattern: str("low|noise"),
	}
	alert := models.Alert{Source: "AWS CloudWatch", Title: "Billing Alarm"}
	if res := Evaluate(alert, "noise", []models.SuppressionRule{rule}, time.Now()); !res.Suppressed {
		t.Fatalf("classification noise should match low|noise")
	}
	if res := Evaluate(alert, "sev1", []models.SuppressionRule{rule}, time.Now()); res.Suppressed {
		t.Fatalf("classification sev1 must not match low|noise")
	}
}

func TestEvaluateDisabledAndExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	disabled := models.SuppressionRule{ID: "r1", Name: "off", Enabled: false}
	expired := models.SuppressionRule{ID: "r2", Name: "expired", Enabled: true, ExpiresAt: &past}
	active := models.SuppressionRule{ID: "r3", Name: "active", Enabled: true, ExpiresAt: &future}

	res := Evaluate(models.Alert{Title: "x"}, "", []models.SuppressionRule{disabled, expired, active}, now)
	if !res.Suppressed || res.RuleID != "r3" {
		t.Fatalf("only the unexpired enabled rule may win, got %+v", res)
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	first := models.SuppressionRule{ID: "a", Name: "first", Enabled: true}
	second := models.SuppressionRule{ID: "b", Name: "second", Enabled: true}
	res := Evaluate(models.Alert{Title: "x"}, "", []models.SuppressionRule{first, second}, time.Now())
	if res.RuleID != "a" {
		t.Fatalf("first matching rule in store order must win, got %s", res.RuleID)
	}
}

func TestTimeWindow(t *testing.T) {
	rule := models.SuppressionRule{
		ID: "r1", Name: "maintenance", Enabled: true,
		TimeWindowStart: str("02:00"),
		TimeWindowEnd:   str("06:00"),
	}
	rules := []models.SuppressionRule{rule}
	now := time.Now().UTC()

	if res := Evaluate(alertAt("03:30"), "", rules, now); !res.Suppressed {
		t.Fatalf("03:30 is inside [02:00,06:00)")
	}
	if res := Evaluate(alertAt("06:00"), "", rules, now); res.Suppressed {
		t.Fatalf("06:00 is outside the half-open window")
	}
	if res := Evaluate(alertAt("01:59"), "", rules, now); res.Suppressed {
		t.Fatalf("01:59 is before the window")
	}
}

func TestTimeWindowWrapsMidnight(t *testing.T) {
	rule := models.SuppressionRule{
		ID: "r1", Name: "overnight", Enabled: true,
		TimeWindowStart: str("22:00"),
		TimeWindowEnd:   str("04:00"),
	}
	rules := []models.SuppressionRule{rule}
	now := time.Now().UTC()

	for _, hhmm := range []string{"23:15", "00:30", "03:59"} {
		if res := Evaluate(alertAt(hhmm), "", rules, now); !res.Suppressed {
			t.Fatalf("%s must be inside the wrapped window", hhmm)
		}
	}
	for _, hhmm := range []string{"04:00", "12:00", "21:59"} {
		if res := Evaluate(alertAt(hhmm), "", rules, now); res.Suppressed {
			t.Fatalf("%s must be outside the wrapped window", hhmm)
		}
	}
}

func TestInvalidPatternNeverSuppresses(t *testing.T) {
	rule := models.SuppressionRule{
		ID: "r1", Name: "broken", Enabled: true,
		TitlePattern: str("["),
	}
	res := Evaluate(models.Alert{Title: "["}, "", []models.SuppressionRule{rule}, time.Now())
	if res.Suppressed {
		t.Fatalf("an uncompilable pattern must never suppress")
	}
}
