package audit

import (
	"context"
	"sync"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// MemorySink is the in-process sink used by tests and the evaluation
// harness. Entries are kept in append order.
type MemorySink struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	failing bool
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

// Fail makes subsequent appends fail, for exercising the fail-closed
// path in engine tests.
func (m *MemorySink) Fail(on bool) {
	m.mu.Lock()
	m.failing = on
	m.mu.Unlock()
}

func (m *MemorySink) Append(_ context.Context, e models.AuditEntry) (models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return models.AuditEntry{}, ErrAppendFailed
	}
	e = stamp(e)
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *MemorySink) List(_ context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AuditEntry{}
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemorySink) ListByIncident(_ context.Context, incidentID string) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AuditEntry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].IncidentID == incidentID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}
