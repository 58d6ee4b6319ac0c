// Package store holds the persistence layer: incidents, the four rule
// tables, display policies, event sources, the settings singleton, and
// the dedup cache. Postgres backs production; the memory store backs
// tests and the evaluation harness.
package store

import (
	"context"
	"errors"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

var ErrNotFound = errors.New("not found")

type IncidentStore interface {
	ListIncidents(ctx context.Context) ([]models.Incident, error)
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	CreateIncident(ctx context.Context, inc models.Incident) (models.Incident, error)
	UpdateIncident(ctx context.Context, id string, patch models.IncidentPatch) (models.Incident, error)
	DeleteIncident(ctx context.Context, id string) error
}

// RuleStore serves the four policy tables. List order is stable:
// escalation by priority, matrix by sort order, the rest by creation
// time; id breaks every tie so evaluation order never depends on
// storage internals.
type RuleStore interface {
	ListEscalationRules(ctx context.Context) ([]models.EscalationRule, error)
	GetEscalationRule(ctx context.Context, id string) (models.EscalationRule, error)
	CreateEscalationRule(ctx context.Context, r models.EscalationRule) (models.EscalationRule, error)
	UpdateEscalationRule(ctx context.Context, id string, patch models.EscalationRulePatch) (models.EscalationRule, error)
	DeleteEscalationRule(ctx context.Context, id string) error

	ListGatingRules(ctx context.Context) ([]models.GatingRule, error)
	GetGatingRule(ctx context.Context, id string) (models.GatingRule, error)
	CreateGatingRule(ctx context.Context, r models.GatingRule) (models.GatingRule, error)
	UpdateGatingRule(ctx context.Context, id string, patch models.GatingRulePatch) (models.GatingRule, error)
	DeleteGatingRule(ctx context.Context, id string) error

	ListSuppressionRules(ctx context.Context) ([]models.SuppressionRule, error)
	GetSuppressionRule(ctx context.Context, id string) (models.SuppressionRule, error)
	CreateSuppressionRule(ctx context.Context, r models.SuppressionRule) (models.SuppressionRule, error)
	UpdateSuppressionRule(ctx context.Context, id string, patch models.SuppressionRulePatch) (models.SuppressionRule, error)
	DeleteSuppressionRule(ctx context.Context, id string) error
	// IncrementSuppressed bumps the rule's hit counter atomically.
	IncrementSuppressed(ctx context.Context, id string) error

	ListMatrix(ctx context.Context) ([]models.DecisionMatrixEntry, error)
	GetMatrixEntry(ctx context.Context, id string) (models.DecisionMatrixEntry, error)
	CreateMatrixEntry(ctx context.Context, e models.DecisionMatrixEntry) (models.DecisionMatrixEntry, error)
	UpdateMatrixEntry(ctx context.Context, id string, patch models.DecisionMatrixPatch) (models.DecisionMatrixEntry, error)
	DeleteMatrixEntry(ctx context.Context, id string) error
}

// PolicyStore serves the dashboard's display policies. They are seeded
// rows; the API only lists them and flips the enable toggle.
type PolicyStore interface {
	ListPolicyRules(ctx context.Context) ([]models.PolicyRule, error)
	GetPolicyRule(ctx context.Context, id string) (models.PolicyRule, error)
	CreatePolicyRule(ctx context.Context, r models.PolicyRule) (models.PolicyRule, error)
	UpdatePolicyRule(ctx context.Context, id string, patch models.PolicyRulePatch) (models.PolicyRule, error)
}

// SourceStore tracks the monitoring feeds and their health counters.
type SourceStore interface {
	ListEventSources(ctx context.Context) ([]models.EventSource, error)
	CreateEventSource(ctx context.Context, src models.EventSource) (models.EventSource, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error)
}

// Store is the full persistence surface the gateway wires up.
type Store interface {
	IncidentStore
	RuleStore
	PolicyStore
	SourceStore
	SettingsStore
}

// Snapshot reads all four rule tables once so a single evaluation sees
// a consistent rule set even while operators edit rules concurrently.
func Snapshot(ctx context.Context, s RuleStore) (models.RuleSnapshot, error) {
	esc, err := s.ListEscalationRules(ctx)
	if err != nil {
		return models.RuleSnapshot{}, err
	}
	gat, err := s.ListGatingRules(ctx)
	if err != nil {
		return models.RuleSnapshot{}, err
	}
	sup, err := s.ListSuppressionRules(ctx)
	if err != nil {
		return models.RuleSnapshot{}, err
	}
	mat, err := s.ListMatrix(ctx)
	if err != nil {
		return models.RuleSnapshot{}, err
	}
	return models.RuleSnapshot{Escalation: esc, Gating: gat, Suppression: sup, Matrix: mat}, nil
}
