package matrix

import (
	"errors"
	"testing"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

func TestResolve(t *testing.T) {
	entries := []models.DecisionMatrixEntry{
		{Severity: "sev1", CreateIncident: true, TriggerMim: true, PageOncall: true},
		{Severity: "high", CreateIncident: true, TriggerMim: false, PageOncall: true},
		{Severity: "noise", CreateIncident: false, TriggerMim: false, PageOncall: false},
	}

	perms, err := Resolve("sev1", entries)
	if err != nil {
		t.Fatalf("Resolve(sev1): %v", err)
	}
	if !perms.CreateIncident || !perms.TriggerMim || !perms.PageOncall {
		t.Fatalf("sev1 permissions = %+v, want all true", perms)
	}

	perms, err = Resolve("noise", entries)
	if err != nil {
		t.Fatalf("Resolve(noise): %v", err)
	}
	if perms.CreateIncident || perms.TriggerMim || perms.PageOncall {
		t.Fatalf("noise permissions = %+v, want all false", perms)
	}
}

func TestResolveExactMatchOnly(t *testing.T) {
	entries := []models.DecisionMatrixEntry{{Severity: "sev1", CreateIncident: true}}
	if _, err := Resolve("SEV1", entries); !errors.Is(err, ErrUnknownSeverity) {
		t.Fatalf("label matching is case-sensitive, got err %v", err)
	}
}

func TestResolveUnknownSeverity(t *testing.T) {
	_, err := Resolve("mystery", nil)
	if !errors.Is(err, ErrUnknownSeverity) {
		t.Fatalf("want ErrUnknownSeverity, got %v", err)
	}
}
