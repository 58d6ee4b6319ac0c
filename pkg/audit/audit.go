// Package audit persists the append-only trail of every decision and
// configuration change. Entries are never updated or deleted; deleting
// an incident leaves its trail behind with a dangling incident id.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// ErrAppendFailed wraps any storage error on the append path. Callers
// treat it as fatal for the transition being recorded.
var ErrAppendFailed = errors.New("audit append failed")

// Sink is the append-only log. Append assigns ID and CreatedAt when the
// caller leaves them zero.
type Sink interface {
	Append(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error)
	List(ctx context.Context, limit int) ([]models.AuditEntry, error)
	ListByIncident(ctx context.Context, incidentID string) ([]models.AuditEntry, error)
}

const DefaultListLimit = 200

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Writer appends to the audit_log table.
type Writer struct {
	DB auditDB
}

func stamp(e models.AuditEntry) models.AuditEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if len(e.EvidencePointers) == 0 {
		e.EvidencePointers = json.RawMessage("[]")
	}
	return e
}

func (w *Writer) Append(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error) {
	e = stamp(e)
	_, err := w.DB.Exec(ctx, `
		INSERT INTO audit_log
		(id, incident_id, action, actor, detail, evidence_pointers, correlation_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, nullable(e.IncidentID), e.Action, e.Actor, e.Detail, e.EvidencePointers, nullable(e.CorrelationID), e.CreatedAt)
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	return e, nil
}

func (w *Writer) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := w.DB.Query(ctx, `
		SELECT id, COALESCE(incident_id,''), action, actor, detail, evidence_pointers, COALESCE(correlation_id,''), created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (w *Writer) ListByIncident(ctx context.Context, incidentID string) ([]models.AuditEntry, error) {
	rows, err := w.DB.Query(ctx, `
		SELECT id, COALESCE(incident_id,''), action, actor, detail, evidence_pointers, COALESCE(correlation_id,''), created_at
		FROM audit_log WHERE incident_id=$1 ORDER BY created_at DESC, id DESC
	`, incidentID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]models.AuditEntry, error) {
	defer rows.Close()
	out := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Action, &e.Actor, &e.Detail, &e.EvidencePointers, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
