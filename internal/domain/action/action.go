// Package action defines autonomous remediation actions, their execution
// results, and the persisted audit log entity.
package action

import (
	"encoding/json"
	"time"

	"github.com/shepd/shepherd/internal/domain/decision"
)

// Action is one fully parameterized remediation. Type selects the handler;
// the remaining fields are populated per type and ignored otherwise.
type Action struct {
	Type decision.ActionType `json:"type"`

	AgentID    string `json:"agent_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Message    string `json:"message,omitempty"`     // prompt_agent
	Reason     string `json:"reason,omitempty"`      // pause_agent
	FromAgent  string `json:"from_agent,omitempty"`  // reassign_task
	ToAgent    string `json:"to_agent,omitempty"`    // reassign_task
	FilePath   string `json:"file_path,omitempty"`   // release_lock
	Status     string `json:"status,omitempty"`      // update_task_status
	Notes      string `json:"notes,omitempty"`       // update_task_status
	TokenCount int    `json:"token_count,omitempty"` // save_checkpoint_and_pause
	TokenLimit int    `json:"token_limit,omitempty"` // save_checkpoint_and_pause
	Stage      string `json:"stage,omitempty"`       // save_checkpoint_and_pause
}

// Result is the outcome of executing one action. Handlers never propagate
// errors; failures surface here.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Outcome tracks an audit entry through its lifecycle.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeOverridden Outcome = "overridden"
)

// HumanOverride records a human countermanding an autonomous action.
type HumanOverride struct {
	OverriddenBy   string `json:"overridden_by"`
	OverrideAction string `json:"override_action"`
	Reason         string `json:"reason,omitempty"`
}

// Log is the persisted audit record of one attempted autonomous action.
// TriggerEvent holds the detection event envelope that prompted it.
type Log struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	ObserverID     string          `json:"observer_id"`
	Action         Action          `json:"action"`
	TriggerEvent   json.RawMessage `json:"trigger_event"`
	Outcome        Outcome         `json:"outcome"`
	OutcomeDetails string          `json:"outcome_details,omitempty"`
	HumanOverride  *HumanOverride  `json:"human_override,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
