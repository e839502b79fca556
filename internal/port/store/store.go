// Package store defines the persistence ports for the escalation log and
// the autonomous-action audit log.
package store

import (
	"context"

	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/escalation"
)

// EscalationStore persists escalations. Writes are durable write-through:
// a call returns only after its write completed. Persistence failures
// propagate to the caller; retry policy lives at a higher layer.
type EscalationStore interface {
	// CreateEscalation inserts a new escalation.
	CreateEscalation(ctx context.Context, e *escalation.Escalation) error

	// GetEscalation returns an escalation by id, or domain.ErrNotFound.
	GetEscalation(ctx context.Context, id string) (*escalation.Escalation, error)

	// ListEscalations returns a project's escalations ordered by priority
	// (critical > high > normal) then creation time ascending. With no
	// statuses given it returns all of them.
	ListEscalations(ctx context.Context, projectID string, statuses ...escalation.Status) ([]escalation.Escalation, error)

	// UpdateEscalation writes back status, resolver, and resolution fields.
	UpdateEscalation(ctx context.Context, e *escalation.Escalation) error

	// CountEscalations returns per-status counts for a project.
	CountEscalations(ctx context.Context, projectID string) (map[escalation.Status]int, error)
}

// ActionLogger persists one audit row per executed autonomous action.
type ActionLogger interface {
	// CreateActionLog inserts a new audit row, normally with a pending outcome.
	CreateActionLog(ctx context.Context, l *action.Log) error

	// UpdateActionOutcome resolves a row to success or failure.
	UpdateActionOutcome(ctx context.Context, id string, outcome action.Outcome, details string) error

	// RecordActionOverride overwrites a row's outcome to overridden,
	// regardless of its prior outcome, and stores the override details.
	RecordActionOverride(ctx context.Context, id string, o action.HumanOverride) error

	// GetActionLog returns an audit row by id, or domain.ErrNotFound.
	GetActionLog(ctx context.Context, id string) (*action.Log, error)

	// ListActionsByProject returns a project's audit rows newest-first,
	// optionally filtered by outcome ("" means all).
	ListActionsByProject(ctx context.Context, projectID string, outcome action.Outcome) ([]action.Log, error)

	// ListActionsByAgent returns a project's audit rows for one agent
	// newest-first. The agent id is matched against the stored trigger event.
	ListActionsByAgent(ctx context.Context, projectID, agentID string) ([]action.Log, error)
}
