package models

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusOpen, StatusTriaging, true},
		{StatusOpen, StatusEscalated, true},
		{StatusOpen, StatusSuppressed, true},
		{StatusTriaging, StatusResolved, true},
		{StatusTriaging, StatusOpen, false},
		{StatusEscalated, StatusResolved, true},
		{StatusEscalated, StatusOpen, false},
		{StatusEscalated, StatusSuppressed, false},
		{StatusHumanReview, StatusEscalated, true},
		{StatusSuppressed, StatusOpen, true},
		{StatusSuppressed, StatusResolved, true},
		{StatusSuppressed, StatusEscalated, false},
		{StatusResolved, StatusOpen, false},
		// Self-transitions are always a no-op.
		{StatusResolved, StatusResolved, true},
		{StatusEscalated, StatusEscalated, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	good := map[string]int{
		"00:00": 0,
		"02:30": 150,
		"23:59": 1439,
	}
	for s, want := range good {
		got, err := ParseClock(s)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", s, err)
		}
		if got != want {
			t.Fatalf("ParseClock(%q) = %d, want %d", s, got, want)
		}
	}
	for _, s := range []string{"24:00", "12:60", "1:00", "12-30", "noon", ""} {
		if _, err := ParseClock(s); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("ParseClock(%q): want ErrInvalidRule, got %v", s, err)
		}
	}
}

func TestSuppressionRuleActiveAt(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if (SuppressionRule{Enabled: false}).ActiveAt(now) {
		t.Fatalf("disabled rule must not be active")
	}
	if !(SuppressionRule{Enabled: true}).ActiveAt(now) {
		t.Fatalf("enabled rule without expiry must be active")
	}
	if (SuppressionRule{Enabled: true, ExpiresAt: &past}).ActiveAt(now) {
		t.Fatalf("expired rule must not be active")
	}
	if !(SuppressionRule{Enabled: true, ExpiresAt: &future}).ActiveAt(now) {
		t.Fatalf("unexpired rule must be active")
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.MaturityLevel != 0 || s.AutoEscalation {
		t.Fatalf("defaults must not auto-execute anything: %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings must validate: %v", err)
	}
}
