package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tejasgit/zero-trust-agent/pkg/models"
)

// PostgresStore implements Store over a pgx pool. Partial updates run
// inside a transaction: the row is locked, the patch merged in Go, the
// merged row validated and written back with a fresh updated_at.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const incidentCols = `id, title, description, source, classification, confidence, status, priority,
	COALESCE(assignment_group,''), COALESCE(escalation_action,''), COALESCE(ai_reasoning,''),
	correlation_id, COALESCE(snow_id,''), COALESCE(pd_id,''), COALESCE(mim_id,''), raw_payload, created_at`

func scanIncident(row pgx.Row) (models.Incident, error) {
	var inc models.Incident
	err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.Source, &inc.Classification,
		&inc.Confidence, &inc.Status, &inc.Priority, &inc.AssignmentGroup, &inc.EscalationAction,
		&inc.AIReasoning, &inc.CorrelationID, &inc.SnowID, &inc.PdID, &inc.MimID, &inc.RawPayload, &inc.CreatedAt)
	return inc, err
}

func (s *PostgresStore) ListIncidents(ctx context.Context) ([]models.Incident, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+incidentCols+` FROM incidents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetIncident(ctx context.Context, id string) (models.Incident, error) {
	inc, err := scanIncident(s.pool.QueryRow(ctx, `SELECT `+incidentCols+` FROM incidents WHERE id=$1`, id))
	return inc, notFound(err)
}

func (s *PostgresStore) CreateIncident(ctx context.Context, inc models.Incident) (models.Incident, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.Status == "" {
		inc.Status = models.StatusOpen
	}
	inc.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO incidents
		(id, title, description, source, classification, confidence, status, priority,
		 assignment_group, escalation_action, ai_reasoning, correlation_id, snow_id, pd_id, mim_id, raw_payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, inc.ID, inc.Title, inc.Description, inc.Source, inc.Classification, inc.Confidence,
		inc.Status, inc.Priority, inc.AssignmentGroup, inc.EscalationAction, inc.AIReasoning,
		inc.CorrelationID, inc.SnowID, inc.PdID, inc.MimID, inc.RawPayload, inc.CreatedAt)
	return inc, err
}

func (s *PostgresStore) UpdateIncident(ctx context.Context, id string, patch models.IncidentPatch) (models.Incident, error) {
	var out models.Incident
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		inc, err := scanIncident(tx.QueryRow(ctx, `SELECT `+incidentCols+` FROM incidents WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		if patch.Status != nil && !models.CanTransition(inc.Status, *patch.Status) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, inc.Status, *patch.Status)
		}
		patch.Apply(&inc)
		_, err = tx.Exec(ctx, `
			UPDATE incidents SET status=$2, classification=$3, priority=$4, assignment_group=$5 WHERE id=$1
		`, id, inc.Status, inc.Classification, inc.Priority, inc.AssignmentGroup)
		out = inc
		return err
	})
	return out, err
}

func (s *PostgresStore) DeleteIncident(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "incidents", id)
}

const escalationCols = `id, name, description, priority, enabled, condition_classification, condition_source,
	condition_min_confidence, condition_max_confidence, condition_priority,
	action_type, action_target, action_config, created_at, updated_at`

func scanEscalation(row pgx.Row) (models.EscalationRule, error) {
	var r models.EscalationRule
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Priority, &r.Enabled,
		&r.ConditionClassification, &r.ConditionSource, &r.ConditionMinConfidence,
		&r.ConditionMaxConfidence, &r.ConditionPriority,
		&r.ActionType, &r.ActionTarget, &r.ActionConfig, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) ListEscalationRules(ctx context.Context) ([]models.EscalationRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+escalationCols+` FROM escalation_rules ORDER BY priority, created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.EscalationRule{}
	for rows.Next() {
		r, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetEscalationRule(ctx context.Context, id string) (models.EscalationRule, error) {
	r, err := scanEscalation(s.pool.QueryRow(ctx, `SELECT `+escalationCols+` FROM escalation_rules WHERE id=$1`, id))
	return r, notFound(err)
}

func (s *PostgresStore) CreateEscalationRule(ctx context.Context, r models.EscalationRule) (models.EscalationRule, error) {
	if err := r.Validate(); err != nil {
		return models.EscalationRule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	_, err := s.pool.Exec(ctx, `
		INSERT INTO escalation_rules
		(id, name, description, priority, enabled, condition_classification, condition_source,
		 condition_min_confidence, condition_max_confidence, condition_priority,
		 action_type, action_target, action_config, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, r.ID, r.Name, r.Description, r.Priority, r.Enabled, r.ConditionClassification, r.ConditionSource,
		r.ConditionMinConfidence, r.ConditionMaxConfidence, r.ConditionPriority,
		r.ActionType, r.ActionTarget, r.ActionConfig, r.CreatedAt, r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) UpdateEscalationRule(ctx context.Context, id string, patch models.EscalationRulePatch) (models.EscalationRule, error) {
	var out models.EscalationRule
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := scanEscalation(tx.QueryRow(ctx, `SELECT `+escalationCols+` FROM escalation_rules WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		patch.Apply(&r)
		if err := r.Validate(); err != nil {
			return err
		}
		r.UpdatedAt = time.Now().UTC()
		_, err = tx.Exec(ctx, `
			UPDATE escalation_rules SET name=$2, description=$3, priority=$4, enabled=$5,
			condition_classification=$6, condition_source=$7, condition_min_confidence=$8,
			condition_max_confidence=$9, condition_priority=$10, action_type=$11,
			action_target=$12, action_config=$13, updated_at=$14 WHERE id=$1
		`, id, r.Name, r.Description, r.Priority, r.Enabled, r.ConditionClassification,
			r.ConditionSource, r.ConditionMinConfidence, r.ConditionMaxConfidence,
			r.ConditionPriority, r.ActionType, r.ActionTarget, r.ActionConfig, r.UpdatedAt)
		out = r
		return err
	})
	return out, err
}

func (s *PostgresStore) DeleteEscalationRule(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "escalation_rules", id)
}

const gatingCols = `id, name, description, enabled, action_type, min_confidence,
	require_human_approval, approval_timeout, fallback_action, created_at, updated_at`

func scanGating(row pgx.Row) (models.GatingRule, error) {
	var r models.GatingRule
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Enabled, &r.ActionType, &r.MinConfidence,
		&r.RequireHumanApproval, &r.ApprovalTimeout, &r.FallbackAction, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) ListGatingRules(ctx context.Context) ([]models.GatingRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+gatingCols+` FROM gating_rules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.GatingRule{}
	for rows.Next() {
		r, err := scanGating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetGatingRule(ctx context.Context, id string) (models.GatingRule, error) {
	r, err := scanGating(s.pool.QueryRow(ctx, `SELECT `+gatingCols+` FROM gating_rules WHERE id=$1`, id))
	return r, notFound(err)
}

func (s *PostgresStore) CreateGatingRule(ctx context.Context, r models.GatingRule) (models.GatingRule, error) {
	if err := r.Validate(); err != nil {
		return models.GatingRule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	_, err := s.pool.Exec(ctx, `
		INSERT INTO gating_rules
		(id, name, description, enabled, action_type, min_confidence,
		 require_human_approval, approval_timeout, fallback_action, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, r.ID, r.Name, r.Description, r.Enabled, r.ActionType, r.MinConfidence,
		r.RequireHumanApproval, r.ApprovalTimeout, r.FallbackAction, r.CreatedAt, r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) UpdateGatingRule(ctx context.Context, id string, patch models.GatingRulePatch) (models.GatingRule, error) {
	var out models.GatingRule
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := scanGating(tx.QueryRow(ctx, `SELECT `+gatingCols+` FROM gating_rules WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		patch.Apply(&r)
		if err := r.Validate(); err != nil {
			return err
		}
		r.UpdatedAt = time.Now().UTC()
		_, err = tx.Exec(ctx, `
			UPDATE gating_rules SET name=$2, description=$3, enabled=$4, action_type=$5,
			min_confidence=$6, require_human_approval=$7, approval_timeout=$8,
			fallback_action=$9, updated_at=$10 WHERE id=$1
		`, id, r.Name, r.Description, r.Enabled, r.ActionType, r.MinConfidence,
			r.RequireHumanApproval, r.ApprovalTimeout, r.FallbackAction, r.UpdatedAt)
		out = r
		return err
	})
	return out, err
}

func (s *PostgresStore) DeleteGatingRule(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "gating_rules", id)
}

const suppressionCols = `id, name, description, enabled, source_pattern, title_pattern,
	classification_pattern, time_window_start, time_window_end, expires_at,
	suppressed_count, created_at, updated_at`

func scanSuppression(row pgx.Row) (models.SuppressionRule, error) {
	var r models.SuppressionRule
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Enabled, &r.SourcePattern, &r.TitlePattern,
		&r.ClassificationPattern, &r.TimeWindowStart, &r.TimeWindowEnd, &r.ExpiresAt,
		&r.SuppressedCount, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) ListSuppressionRules(ctx context.Context) ([]models.SuppressionRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+suppressionCols+` FROM suppression_rules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.SuppressionRule{}
	for rows.Next() {
		r, err := scanSuppression(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSuppressionRule(ctx context.Context, id string) (models.SuppressionRule, error) {
	r, err := scanSuppression(s.pool.QueryRow(ctx, `SELECT `+suppressionCols+` FROM suppression_rules WHERE id=$1`, id))
	return r, notFound(err)
}

func (s *PostgresStore) CreateSuppressionRule(ctx context.Context, r models.SuppressionRule) (models.SuppressionRule, error) {
	if err := r.Validate(); err != nil {
		return models.SuppressionRule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.SuppressedCount = 0
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suppression_rules
		(id, name, description, enabled, source_pattern, title_pattern, classification_pattern,
		 time_window_start, time_window_end, expires_at, suppressed_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, r.ID, r.Name, r.Description, r.Enabled, r.SourcePattern, r.TitlePattern, r.ClassificationPattern,
		r.TimeWindowStart, r.TimeWindowEnd, r.ExpiresAt, r.SuppressedCount, r.CreatedAt, r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) UpdateSuppressionRule(ctx context.Context, id string, patch models.SuppressionRulePatch) (models.SuppressionRule, error) {
	var out models.SuppressionRule
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := scanSuppression(tx.QueryRow(ctx, `SELECT `+suppressionCols+` FROM suppression_rules WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		patch.Apply(&r)
		if err := r.Validate(); err != nil {
			return err
		}
		r.UpdatedAt = time.Now().UTC()
		_, err = tx.Exec(ctx, `
			UPDATE suppression_rules SET name=$2, description=$3, enabled=$4, source_pattern=$5,
			title_pattern=$6, classification_pattern=$7, time_window_start=$8, time_window_end=$9,
			expires_at=$10, updated_at=$11 WHERE id=$1
		`, id, r.Name, r.Description, r.Enabled, r.SourcePattern, r.TitlePattern,
			r.ClassificationPattern, r.TimeWindowStart, r.TimeWindowEnd, r.ExpiresAt, r.UpdatedAt)
		out = r
		return err
	})
	return out, err
}

func (s *PostgresStore) DeleteSuppressionRule(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "suppression_rules", id)
}

func (s *PostgresStore) IncrementSuppressed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE suppression_rules SET suppressed_count = suppressed_count + 1 WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const matrixCols = `id, severity, description, create_incident, trigger_mim, page_oncall,
	COALESCE(nr_signal,''), COALESCE(example_sources,''), COALESCE(criteria,''), sort_order, created_at, updated_at`

func scanMatrix(row pgx.Row) (models.DecisionMatrixEntry, error) {
	var e models.DecisionMatrixEntry
	err := row.Scan(&e.ID, &e.Severity, &e.Description, &e.CreateIncident, &e.TriggerMim, &e.PageOncall,
		&e.NRSignal, &e.ExampleSources, &e.Criteria, &e.SortOrder, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *PostgresStore) ListMatrix(ctx context.Context) ([]models.DecisionMatrixEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+matrixCols+` FROM decision_matrix ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.DecisionMatrixEntry{}
	for rows.Next() {
		e, err := scanMatrix(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetMatrixEntry(ctx context.Context, id string) (models.DecisionMatrixEntry, error) {
	e, err := scanMatrix(s.pool.QueryRow(ctx, `SELECT `+matrixCols+` FROM decision_matrix WHERE id=$1`, id))
	return e, notFound(err)
}

func (s *PostgresStore) CreateMatrixEntry(ctx context.Context, e models.DecisionMatrixEntry) (models.DecisionMatrixEntry, error) {
	if err := e.Validate(); err != nil {
		return models.DecisionMatrixEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	_, err := s.pool.Exec(ctx, `
		INSERT INTO decision_matrix
		(id, severity, description, create_incident, trigger_mim, page_oncall,
		 nr_signal, example_sources, criteria, sort_order, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.ID, e.Severity, e.Description, e.CreateIncident, e.TriggerMim, e.PageOncall,
		e.NRSignal, e.ExampleSources, e.Criteria, e.SortOrder, e.CreatedAt, e.UpdatedAt)
	return e, err
}

func (s *PostgresStore) UpdateMatrixEntry(ctx context.Context, id string, patch models.DecisionMatrixPatch) (models.DecisionMatrixEntry, error) {
	var out models.DecisionMatrixEntry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		e, err := scanMatrix(tx.QueryRow(ctx, `SELECT `+matrixCols+` FROM decision_matrix WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		patch.Apply(&e)
		if err := e.Validate(); err != nil {
			return err
		}
		e.UpdatedAt = time.Now().UTC()
		_, err = tx.Exec(ctx, `
			UPDATE decision_matrix SET severity=$2, description=$3, create_incident=$4,
			trigger_mim=$5, page_oncall=$6, nr_signal=$7, example_sources=$8, criteria=$9,
			sort_order=$10, updated_at=$11 WHERE id=$1
		`, id, e.Severity, e.Description, e.CreateIncident, e.TriggerMim, e.PageOncall,
			e.NRSignal, e.ExampleSources, e.Criteria, e.SortOrder, e.UpdatedAt)
		out = e
		return err
	})
	return out, err
}

func (s *PostgresStore) DeleteMatrixEntry(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "decision_matrix", id)
}

const policyCols = `id, name, description, condition, action, threshold, enabled, category, created_at, updated_at`

func scanPolicy(row pgx.Row) (models.PolicyRule, error) {
	var r models.PolicyRule
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Condition, &r.Action, &r.Threshold,
		&r.Enabled, &r.Category, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) ListPolicyRules(ctx context.Context) ([]models.PolicyRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+policyCols+` FROM policy_rules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.PolicyRule{}
	for rows.Next() {
		r, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetPolicyRule(ctx context.Context, id string) (models.PolicyRule, error) {
	r, err := scanPolicy(s.pool.QueryRow(ctx, `SELECT `+policyCols+` FROM policy_rules WHERE id=$1`, id))
	return r, notFound(err)
}

func (s *PostgresStore) CreatePolicyRule(ctx context.Context, r models.PolicyRule) (models.PolicyRule, error) {
	if r.Category == "" {
		r.Category = models.PolicyCategoryEscalation
	}
	if err := r.Validate(); err != nil {
		return models.PolicyRule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	_, err := s.pool.Exec(ctx, `
		INSERT INTO policy_rules
		(id, name, description, condition, action, threshold, enabled, category, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.ID, r.Name, r.Description, r.Condition, r.Action, r.Threshold, r.Enabled, r.Category, r.CreatedAt, r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) UpdatePolicyRule(ctx context.Context, id string, patch models.PolicyRulePatch) (models.PolicyRule, error) {
	var out models.PolicyRule
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := scanPolicy(tx.QueryRow(ctx, `SELECT `+policyCols+` FROM policy_rules WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		patch.Apply(&r)
		r.UpdatedAt = time.Now().UTC()
		_, err = tx.Exec(ctx, `UPDATE policy_rules SET enabled=$2, updated_at=$3 WHERE id=$1`, id, r.Enabled, r.UpdatedAt)
		out = r
		return err
	})
	return out, err
}

const sourceCols = `id, name, type, status, last_heartbeat, events_processed, created_at`

func scanSource(row pgx.Row) (models.EventSource, error) {
	var src models.EventSource
	err := row.Scan(&src.ID, &src.Name, &src.Type, &src.Status, &src.LastHeartbeat, &src.EventsProcessed, &src.CreatedAt)
	return src, err
}

func (s *PostgresStore) ListEventSources(ctx context.Context) ([]models.EventSource, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceCols+` FROM event_sources ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.EventSource{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateEventSource(ctx context.Context, src models.EventSource) (models.EventSource, error) {
	if src.Status == "" {
		src.Status = models.SourceActive
	}
	if err := src.Validate(); err != nil {
		return models.EventSource{}, err
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	src.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_sources
		(id, name, type, status, last_heartbeat, events_processed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, src.ID, src.Name, src.Type, src.Status, src.LastHeartbeat, src.EventsProcessed, src.CreatedAt)
	return src, err
}

func (s *PostgresStore) GetSettings(ctx context.Context) (models.Settings, error) {
	var cfg models.Settings
	err := s.pool.QueryRow(ctx, `
		SELECT maturity_level, auto_escalation, mim_gating, confidence_threshold, deduplication_window
		FROM settings WHERE id=1
	`).Scan(&cfg.MaturityLevel, &cfg.AutoEscalation, &cfg.MimGating, &cfg.ConfidenceThreshold, &cfg.DeduplicationWindow)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultSettings(), nil
	}
	return cfg, err
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	var out models.Settings
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		cfg := models.DefaultSettings()
		err := tx.QueryRow(ctx, `
			SELECT maturity_level, auto_escalation, mim_gating, confidence_threshold, deduplication_window
			FROM settings WHERE id=1 FOR UPDATE
		`).Scan(&cfg.MaturityLevel, &cfg.AutoEscalation, &cfg.MimGating, &cfg.ConfidenceThreshold, &cfg.DeduplicationWindow)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		patch.Apply(&cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO settings (id, maturity_level, auto_escalation, mim_gating, confidence_threshold, deduplication_window, updated_at)
			VALUES (1,$1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO UPDATE SET maturity_level=$1, auto_escalation=$2, mim_gating=$3,
			confidence_threshold=$4, deduplication_window=$5, updated_at=$6
		`, cfg.MaturityLevel, cfg.AutoEscalation, cfg.MimGating, cfg.ConfidenceThreshold, cfg.DeduplicationWindow, time.Now().UTC())
		out = cfg
		return err
	})
	return out, err
}

func (s *PostgresStore) deleteRow(ctx context.Context, table, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
