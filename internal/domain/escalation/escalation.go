// Package escalation defines the persisted escalation entity and its
// human-handling lifecycle.
package escalation

import (
	"encoding/json"
	"time"

	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
)

// Status represents where an escalation sits in its lifecycle.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
)

// Escalation is a persisted, human-actionable record created when a decision
// requires human attention.
type Escalation struct {
	ID               string             `json:"id"`
	ProjectID        string             `json:"project_id"`
	Priority         decision.Priority  `json:"priority"`
	Type             detection.Kind     `json:"type"`
	Title            string             `json:"title"`
	AgentID          string             `json:"agent_id,omitempty"`
	TaskID           string             `json:"task_id,omitempty"`
	DetectionEvent   json.RawMessage    `json:"detection_event"`
	ConsoleOutput    string             `json:"console_output"`
	AttemptedActions []action.Log       `json:"attempted_actions"`
	SuggestedAction  string             `json:"suggested_action,omitempty"`
	Status           Status             `json:"status"`
	ResolvedBy       string             `json:"resolved_by,omitempty"`
	ResolvedAt       time.Time          `json:"resolved_at,omitzero"`
	Resolution       string             `json:"resolution,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	ExpiresAt        time.Time          `json:"expires_at,omitzero"`
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another. Resolved and dismissed are terminal.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusAcknowledged:
		return from == StatusPending
	case StatusResolved, StatusDismissed:
		return from == StatusPending || from == StatusAcknowledged
	}
	return false
}
