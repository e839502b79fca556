package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shepd/shepherd/internal/domain"
	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/escalation"
)

// Store implements store.EscalationStore and store.ActionLogger using
// PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// nullTime converts a zero time to nil for nullable DB columns.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// priorityOrder sorts critical first, then high, then normal.
const priorityOrder = `CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 ELSE 2 END`

const escalationColumns = `id, project_id, priority, type, title, agent_id, task_id,
	detection_event, console_output, attempted_actions, suggested_action,
	status, resolved_by, resolved_at, resolution, created_at, expires_at`

// --- Escalations ---

func (s *Store) CreateEscalation(ctx context.Context, e *escalation.Escalation) error {
	attempted, err := json.Marshal(orEmpty(e.AttemptedActions))
	if err != nil {
		return fmt.Errorf("marshal attempted actions: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO escalations (id, project_id, priority, type, title, agent_id, task_id,
		    detection_event, console_output, attempted_actions, suggested_action,
		    status, resolved_by, resolved_at, resolution, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		e.ID, e.ProjectID, e.Priority, e.Type, e.Title, e.AgentID, e.TaskID,
		[]byte(e.DetectionEvent), e.ConsoleOutput, attempted, e.SuggestedAction,
		e.Status, e.ResolvedBy, nullTime(e.ResolvedAt), e.Resolution, e.CreatedAt, nullTime(e.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create escalation %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) GetEscalation(ctx context.Context, id string) (*escalation.Escalation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE id = $1`, id)

	e, err := scanEscalation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get escalation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get escalation %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) ListEscalations(ctx context.Context, projectID string, statuses ...escalation.Status) ([]escalation.Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE project_id = $1`
	args := []any{projectID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		list := make([]string, len(statuses))
		for i, st := range statuses {
			list[i] = string(st)
		}
		args = append(args, list)
	}
	query += ` ORDER BY ` + priorityOrder + `, created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var out []escalation.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateEscalation(ctx context.Context, e *escalation.Escalation) error {
	attempted, err := json.Marshal(orEmpty(e.AttemptedActions))
	if err != nil {
		return fmt.Errorf("marshal attempted actions: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE escalations
		 SET status = $2, resolved_by = $3, resolved_at = $4, resolution = $5, attempted_actions = $6
		 WHERE id = $1`,
		e.ID, e.Status, e.ResolvedBy, nullTime(e.ResolvedAt), e.Resolution, attempted)
	if err != nil {
		return fmt.Errorf("update escalation %s: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update escalation %s: %w", e.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) CountEscalations(ctx context.Context, projectID string) (map[escalation.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM escalations WHERE project_id = $1 GROUP BY status`, projectID)
	if err != nil {
		return nil, fmt.Errorf("count escalations: %w", err)
	}
	defer rows.Close()

	counts := make(map[escalation.Status]int)
	for rows.Next() {
		var status escalation.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan escalation count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanEscalation(row scannable) (escalation.Escalation, error) {
	var (
		e          escalation.Escalation
		event      []byte
		attempted  []byte
		resolvedAt *time.Time
		expiresAt  *time.Time
	)
	err := row.Scan(&e.ID, &e.ProjectID, &e.Priority, &e.Type, &e.Title, &e.AgentID, &e.TaskID,
		&event, &e.ConsoleOutput, &attempted, &e.SuggestedAction,
		&e.Status, &e.ResolvedBy, &resolvedAt, &e.Resolution, &e.CreatedAt, &expiresAt)
	if err != nil {
		return escalation.Escalation{}, err
	}

	e.DetectionEvent = json.RawMessage(event)
	e.ResolvedAt = fromNullTime(resolvedAt)
	e.ExpiresAt = fromNullTime(expiresAt)
	if err := json.Unmarshal(attempted, &e.AttemptedActions); err != nil {
		return escalation.Escalation{}, fmt.Errorf("unmarshal attempted actions: %w", err)
	}
	return e, nil
}

// --- Action audit log ---

const actionColumns = `id, project_id, observer_id, action, trigger_event,
	outcome, outcome_details, human_override, created_at`

func (s *Store) CreateActionLog(ctx context.Context, l *action.Log) error {
	act, err := json.Marshal(l.Action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	override, err := marshalOverride(l.HumanOverride)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO observer_actions (id, project_id, observer_id, action, trigger_event,
		    outcome, outcome_details, human_override, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.ProjectID, l.ObserverID, act, []byte(l.TriggerEvent),
		l.Outcome, l.OutcomeDetails, override, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create action log %s: %w", l.ID, err)
	}
	return nil
}

func (s *Store) UpdateActionOutcome(ctx context.Context, id string, outcome action.Outcome, details string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE observer_actions SET outcome = $2, outcome_details = $3 WHERE id = $1`,
		id, outcome, details)
	if err != nil {
		return fmt.Errorf("update action outcome %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update action outcome %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) RecordActionOverride(ctx context.Context, id string, o action.HumanOverride) error {
	override, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal override: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE observer_actions SET outcome = $2, human_override = $3 WHERE id = $1`,
		id, action.OutcomeOverridden, override)
	if err != nil {
		return fmt.Errorf("record action override %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record action override %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) GetActionLog(ctx context.Context, id string) (*action.Log, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM observer_actions WHERE id = $1`, id)

	l, err := scanActionLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get action log %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get action log %s: %w", id, err)
	}
	return &l, nil
}

func (s *Store) ListActionsByProject(ctx context.Context, projectID string, outcome action.Outcome) ([]action.Log, error) {
	query := `SELECT ` + actionColumns + ` FROM observer_actions WHERE project_id = $1`
	args := []any{projectID}
	if outcome != "" {
		query += ` AND outcome = $2`
		args = append(args, outcome)
	}
	query += ` ORDER BY created_at DESC`

	return s.queryActionLogs(ctx, query, args...)
}

func (s *Store) ListActionsByAgent(ctx context.Context, projectID, agentID string) ([]action.Log, error) {
	return s.queryActionLogs(ctx,
		`SELECT `+actionColumns+` FROM observer_actions
		 WHERE project_id = $1 AND trigger_event->>'agent_id' = $2
		 ORDER BY created_at DESC`,
		projectID, agentID)
}

func (s *Store) queryActionLogs(ctx context.Context, query string, args ...any) ([]action.Log, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list action logs: %w", err)
	}
	defer rows.Close()

	var out []action.Log
	for rows.Next() {
		l, err := scanActionLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanActionLog(row scannable) (action.Log, error) {
	var (
		l        action.Log
		act      []byte
		event    []byte
		override []byte
	)
	err := row.Scan(&l.ID, &l.ProjectID, &l.ObserverID, &act, &event,
		&l.Outcome, &l.OutcomeDetails, &override, &l.CreatedAt)
	if err != nil {
		return action.Log{}, err
	}

	l.TriggerEvent = json.RawMessage(event)
	if err := json.Unmarshal(act, &l.Action); err != nil {
		return action.Log{}, fmt.Errorf("unmarshal action: %w", err)
	}
	if len(override) > 0 {
		var o action.HumanOverride
		if err := json.Unmarshal(override, &o); err != nil {
			return action.Log{}, fmt.Errorf("unmarshal override: %w", err)
		}
		l.HumanOverride = &o
	}
	return l, nil
}

func marshalOverride(o *action.HumanOverride) (any, error) {
	if o == nil {
		return nil, nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal override: %w", err)
	}
	return data, nil
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Ensures JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
