package escalate

import (
	"errors"
	"testing"
	"time"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }

func incident() models.Incident {
	return models.Incident{
		Source:         "AWS CloudWatch",
		Classification: "sev1",
		Priority:       "critical",
		Confidence:     0.93,
	}
}

func TestMatchLowestPriorityWins(t *testing.T) {
	rules := []models.EscalationRule{
		{ID: "b", Name: "broad", Priority: 20, Enabled: true},
		{ID: "a", Name: "urgent", Priority: 10, Enabled: true},
	}
	got, err := Match(incident(), rules)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.ID != "a" {
		t.Fatalf("priority 10 must beat 20, got %s", got.ID)
	}
}

func TestMatchTieBreaks(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	byCreation := []models.EscalationRule{
		{ID: "newer", Priority: 10, Enabled: true, CreatedAt: later},
		{ID: "older", Priority: 10, Enabled: true, CreatedAt: earlier},
	}
	got, err := Match(incident(), byCreation)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.ID != "older" {
		t.Fatalf("equal priority must break on CreatedAt, got %s", got.ID)
	}

	byID := []models.EscalationRule{
		{ID: "zz", Priority: 10, Enabled: true, CreatedAt: earlier},
		{ID: "aa", Priority: 10, Enabled: true, CreatedAt: earlier},
	}
	got, err = Match(incident(), byID)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.ID != "aa" {
		t.Fatalf("final tie must break on id, got %s", got.ID)
	}
}

func TestMatchConditions(t *testing.T) {
	inc := incident()
	cases := []struct {
		name string
		rule models.EscalationRule
		hit  bool
	}{
		{"classification match", models.EscalationRule{ID: "r", Enabled: true, ConditionClassification: strp("sev1")}, true},
		{"classification miss", models.EscalationRule{ID: "r", Enabled: true, ConditionClassification: strp("high")}, false},
		{"source miss", models.EscalationRule{ID: "r", Enabled: true, ConditionSource: strp("Datadog")}, false},
		{"priority match", models.EscalationRule{ID: "r", Enabled: true, ConditionPriority: strp("critical")}, true},
		{"min confidence inclusive", models.EscalationRule{ID: "r", Enabled: true, ConditionMinConfidence: f64p(0.93)}, true},
		{"min confidence miss", models.EscalationRule{ID: "r", Enabled: true, ConditionMinConfidence: f64p(0.95)}, false},
		{"max confidence inclusive", models.EscalationRule{ID: "r", Enabled: true, ConditionMaxConfidence: f64p(0.93)}, true},
		{"max confidence miss", models.EscalationRule{ID: "r", Enabled: true, ConditionMaxConfidence: f64p(0.90)}, false},
	}
	for _, c := range cases {
		_, err := Match(inc, []models.EscalationRule{c.rule})
		if c.hit && err != nil {
			t.Fatalf("%s: unexpected err %v", c.name, err)
		}
		if !c.hit && !errors.Is(err, ErrNoMatch) {
			t.Fatalf("%s: want ErrNoMatch, got %v", c.name, err)
		}
	}
}

func TestMatchSkipsDisabled(t *testing.T) {
	rules := []models.EscalationRule{
		{ID: "off", Priority: 1, Enabled: false},
		{ID: "on", Priority: 99, Enabled: true},
	}
	got, err := Match(incident(), rules)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.ID != "on" {
		t.Fatalf("disabled rules must be skipped even at higher urgency, got %s", got.ID)
	}
}

func TestMatchNoRules(t *testing.T) {
	if _, err := Match(incident(), nil); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("want ErrNoMatch, got %v", err)
	}
}
