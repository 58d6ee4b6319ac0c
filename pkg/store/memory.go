package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// MemoryStore keeps everything under one mutex. It is not built for
// throughput; it exists so the engine, the gateway tests and the
// evaluation harness can run without postgres.
type MemoryStore struct {
	mu          sync.Mutex
	incidents   map[string]models.Incident
	escalation  map[string]models.EscalationRule
	gating      map[string]models.GatingRule
	suppression map[string]models.SuppressionRule
	matrix      map[string]models.DecisionMatrixEntry
	policies    map[string]models.PolicyRule
	sources     map[string]models.EventSource
	settings    models.Settings
	seq         int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents:   map[string]models.Incident{},
		escalation:  map[string]models.EscalationRule{},
		gating:      map[string]models.GatingRule{},
		suppression: map[string]models.SuppressionRule{},
		matrix:      map[string]models.DecisionMatrixEntry{},
		policies:    map[string]models.PolicyRule{},
		sources:     map[string]models.EventSource{},
		settings:    models.DefaultSettings(),
	}
}

// now returns a strictly increasing timestamp so creation order is a
// total order even when the wall clock does not advance between calls.
func (m *MemoryStore) now() time.Time {
	m.seq++
	return time.Now().UTC().Add(time.Duration(m.seq) * time.Nanosecond)
}

func (m *MemoryStore) ListIncidents(_ context.Context) ([]models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetIncident(_ context.Context, id string) (models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return models.Incident{}, ErrNotFound
	}
	return inc, nil
}

func (m *MemoryStore) CreateIncident(_ context.Context, inc models.Incident) (models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.Status == "" {
		inc.Status = models.StatusOpen
	}
	inc.CreatedAt = m.now()
	m.incidents[inc.ID] = inc
	return inc, nil
}

func (m *MemoryStore) UpdateIncident(_ context.Context, id string, patch models.IncidentPatch) (models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return models.Incident{}, ErrNotFound
	}
	if patch.Status != nil && !models.CanTransition(inc.Status, *patch.Status) {
		return models.Incident{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, inc.Status, *patch.Status)
	}
	patch.Apply(&inc)
	m.incidents[id] = inc
	return inc, nil
}

func (m *MemoryStore) DeleteIncident(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[id]; !ok {
		return ErrNotFound
	}
	delete(m.incidents, id)
	return nil
}

func (m *MemoryStore) ListEscalationRules(_ context.Context) ([]models.EscalationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.EscalationRule, 0, len(m.escalation))
	for _, r := range m.escalation {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetEscalationRule(_ context.Context, id string) (models.EscalationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.escalation[id]
	if !ok {
		return models.EscalationRule{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) CreateEscalationRule(_ context.Context, r models.EscalationRule) (models.EscalationRule, error) {
	if err := r.Validate(); err != nil {
		return models.EscalationRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = m.now()
	r.UpdatedAt = r.CreatedAt
	m.escalation[r.ID] = r
	return r, nil
}

func (m *MemoryStore) UpdateEscalationRule(_ context.Context, id string, patch models.EscalationRulePatch) (models.EscalationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.escalation[id]
	if !ok {
		return models.EscalationRule{}, ErrNotFound
	}
	patch.Apply(&r)
	if err := r.Validate(); err != nil {
		return models.EscalationRule{}, err
	}
	r.UpdatedAt = m.now()
	m.escalation[id] = r
	return r, nil
}

func (m *MemoryStore) DeleteEscalationRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.escalation[id]; !ok {
		return ErrNotFound
	}
	delete(m.escalation, id)
	return nil
}

func (m *MemoryStore) ListGatingRules(_ context.Context) ([]models.GatingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GatingRule, 0, len(m.gating))
	for _, r := range m.gating {
		out = append(out, r)
	}
	sortByCreation(out, func(r models.GatingRule) (time.Time, string) { return r.CreatedAt, r.ID })
	return out, nil
}

func (m *MemoryStore) GetGatingRule(_ context.Context, id string) (models.GatingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.gating[id]
	if !ok {
		return models.GatingRule{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) CreateGatingRule(_ context.Context, r models.GatingRule) (models.GatingRule, error) {
	if err := r.Validate(); err != nil {
		return models.GatingRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = m.now()
	r.UpdatedAt = r.CreatedAt
	m.gating[r.ID] = r
	return r, nil
}

func (m *MemoryStore) UpdateGatingRule(_ context.Context, id string, patch models.GatingRulePatch) (models.GatingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.gating[id]
	if !ok {
		return models.GatingRule{}, ErrNotFound
	}
	patch.Apply(&r)
	if err := r.Validate(); err != nil {
		return models.GatingRule{}, err
	}
	r.UpdatedAt = m.now()
	m.gating[id] = r
	return r, nil
}

func (m *MemoryStore) DeleteGatingRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gating[id]; !ok {
		return ErrNotFound
	}
	delete(m.gating, id)
	return nil
}

func (m *MemoryStore) ListSuppressionRules(_ context.Context) ([]models.SuppressionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SuppressionRule, 0, len(m.suppression))
	for _, r := range m.suppression {
		out = append(out, r)
	}
	sortByCreation(out, func(r models.SuppressionRule) (time.Time, string) { return r.CreatedAt, r.ID })
	return out, nil
}

func (m *MemoryStore) GetSuppressionRule(_ context.Context, id string) (models.SuppressionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.suppression[id]
	if !ok {
		return models.SuppressionRule{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) CreateSuppressionRule(_ context.Context, r models.SuppressionRule) (models.SuppressionRule, error) {
	if err := r.Validate(); err != nil {
		return models.SuppressionRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.SuppressedCount = 0
	r.CreatedAt = m.now()
	r.UpdatedAt = r.CreatedAt
	m.suppression[r.ID] = r
	return r, nil
}

func (m *MemoryStore) UpdateSuppressionRule(_ context.Context, id string, patch models.SuppressionRulePatch) (models.SuppressionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.suppression[id]
	if !ok {
		return models.SuppressionRule{}, ErrNotFound
	}
	patch.Apply(&r)
	if err := r.Validate(); err != nil {
		return models.SuppressionRule{}, err
	}
	r.UpdatedAt = m.now()
	m.suppression[id] = r
	return r, nil
}

func (m *MemoryStore) DeleteSuppressionRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.suppression[id]; !ok {
		return ErrNotFound
	}
	delete(m.suppression, id)
	return nil
}

func (m *MemoryStore) IncrementSuppressed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.suppression[id]
	if !ok {
		return ErrNotFound
	}
	r.SuppressedCount++
	m.suppression[id] = r
	return nil
}

func (m *MemoryStore) ListMatrix(_ context.Context) ([]models.DecisionMatrixEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DecisionMatrixEntry, 0, len(m.matrix))
	for _, e := range m.matrix {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetMatrixEntry(_ context.Context, id string) (models.DecisionMatrixEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.matrix[id]
	if !ok {
		return models.DecisionMatrixEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) CreateMatrixEntry(_ context.Context, e models.DecisionMatrixEntry) (models.DecisionMatrixEntry, error) {
	if err := e.Validate(); err != nil {
		return models.DecisionMatrixEntry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = m.now()
	e.UpdatedAt = e.CreatedAt
	m.matrix[e.ID] = e
	return e, nil
}

func (m *MemoryStore) UpdateMatrixEntry(_ context.Context, id string, patch models.DecisionMatrixPatch) (models.DecisionMatrixEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.matrix[id]
	if !ok {
		return models.DecisionMatrixEntry{}, ErrNotFound
	}
	patch.Apply(&e)
	if err := e.Validate(); err != nil {
		return models.DecisionMatrixEntry{}, err
	}
	e.UpdatedAt = m.now()
	m.matrix[id] = e
	return e, nil
}

func (m *MemoryStore) DeleteMatrixEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matrix[id]; !ok {
		return ErrNotFound
	}
	delete(m.matrix, id)
	return nil
}

func (m *MemoryStore) ListPolicyRules(_ context.Context) ([]models.PolicyRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PolicyRule, 0, len(m.policies))
	for _, r := range m.policies {
		out = append(out, r)
	}
	sortByCreation(out, func(r models.PolicyRule) (time.Time, string) { return r.CreatedAt, r.ID })
	return out, nil
}

func (m *MemoryStore) GetPolicyRule(_ context.Context, id string) (models.PolicyRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.policies[id]
	if !ok {
		return models.PolicyRule{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) CreatePolicyRule(_ context.Context, r models.PolicyRule) (models.PolicyRule, error) {
	if r.Category == "" {
		r.Category = models.PolicyCategoryEscalation
	}
	if err := r.Validate(); err != nil {
		return models.PolicyRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = m.now()
	r.UpdatedAt = r.CreatedAt
	m.policies[r.ID] = r
	return r, nil
}

func (m *MemoryStore) UpdatePolicyRule(_ context.Context, id string, patch models.PolicyRulePatch) (models.PolicyRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.policies[id]
	if !ok {
		return models.PolicyRule{}, ErrNotFound
	}
	patch.Apply(&r)
	r.UpdatedAt = m.now()
	m.policies[id] = r
	return r, nil
}

func (m *MemoryStore) ListEventSources(_ context.Context) ([]models.EventSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.EventSource, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sortByCreation(out, func(s models.EventSource) (time.Time, string) { return s.CreatedAt, s.ID })
	return out, nil
}

func (m *MemoryStore) CreateEventSource(_ context.Context, src models.EventSource) (models.EventSource, error) {
	if src.Status == "" {
		src.Status = models.SourceActive
	}
	if err := src.Validate(); err != nil {
		return models.EventSource{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	src.CreatedAt = m.now()
	m.sources[src.ID] = src
	return src, nil
}

func (m *MemoryStore) GetSettings(_ context.Context) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *MemoryStore) UpdateSettings(_ context.Context, patch models.SettingsPatch) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settings
	patch.Apply(&s)
	if err := s.Validate(); err != nil {
		return models.Settings{}, err
	}
	m.settings = s
	return s, nil
}

func sortByCreation[T any](list []T, key func(T) (time.Time, string)) {
	sort.Slice(list, func(i, j int) bool {
		ti, idi := key(list[i])
		tj, idj := key(list[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return idi < idj
	})
}
