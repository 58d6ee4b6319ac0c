package models

import (
	"errors"
	"testing"
)

func sp(s string) *string   { return &s }
func fp(f float64) *float64 { return &f }

func TestEscalationRuleValidate(t *testing.T) {
	valid := EscalationRule{Name: "r", ActionType: ActionSlackNotify}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	bad := []EscalationRule{
		{ActionType: ActionSlackNotify},
		{Name: "r"},
		{Name: "r", ActionType: ActionSlackNotify, ConditionMinConfidence: fp(1.5)},
		{Name: "r", ActionType: ActionSlackNotify, ConditionMaxConfidence: fp(-0.1)},
		{Name: "r", ActionType: ActionSlackNotify, ConditionMinConfidence: fp(0.9), ConditionMaxConfidence: fp(0.5)},
	}
	for i, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("case %d: want ErrInvalidRule, got %v", i, err)
		}
	}
}

func TestGatingRuleValidate(t *testing.T) {
	valid := GatingRule{Name: "g", ActionType: ActionPagerDuty, MinConfidence: 0.88, FallbackAction: FallbackQueue}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	bad := []GatingRule{
		{ActionType: ActionPagerDuty, FallbackAction: FallbackQueue},
		{Name: "g", FallbackAction: FallbackQueue},
		{Name: "g", ActionType: ActionPagerDuty, MinConfidence: 1.1, FallbackAction: FallbackQueue},
		{Name: "g", ActionType: ActionPagerDuty, ApprovalTimeout: -1, FallbackAction: FallbackQueue},
		{Name: "g", ActionType: ActionPagerDuty},
	}
	for i, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("case %d: want ErrInvalidRule, got %v", i, err)
		}
	}
}

func TestSuppressionRuleValidate(t *testing.T) {
	valid := SuppressionRule{
		Name:            "s",
		TitlePattern:    sp("Synthetic.*"),
		TimeWindowStart: sp("02:00"),
		TimeWindowEnd:   sp("06:00"),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	bad := []SuppressionRule{
		{},
		{Name: "s", TitlePattern: sp("[")},
		{Name: "s", TimeWindowStart: sp("02:00")},
		{Name: "s", TimeWindowStart: sp("02:00"), TimeWindowEnd: sp("26:00")},
	}
	for i, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("case %d: want ErrInvalidRule, got %v", i, err)
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	s := Settings{MaturityLevel: 3, ConfidenceThreshold: 0.85, DeduplicationWindow: 300}
	if err := s.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	bad := []Settings{
		{MaturityLevel: 4, ConfidenceThreshold: 0.85, DeduplicationWindow: 300},
		{MaturityLevel: -1, ConfidenceThreshold: 0.85, DeduplicationWindow: 300},
		{MaturityLevel: 2, ConfidenceThreshold: 1.2, DeduplicationWindow: 300},
		{MaturityLevel: 2, ConfidenceThreshold: 0.85, DeduplicationWindow: 59},
		{MaturityLevel: 2, ConfidenceThreshold: 0.85, DeduplicationWindow: 901},
	}
	for i, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("case %d: want ErrInvalidRule, got %v", i, err)
		}
	}
}
