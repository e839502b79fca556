package messagequeue

import "encoding/json"

// EscalationCreatedPayload is the schema for escalations.created messages.
type EscalationCreatedPayload struct {
	EscalationID string `json:"escalation_id"`
	ProjectID    string `json:"project_id"`
	Priority     string `json:"priority"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	AgentID      string `json:"agent_id,omitempty"`
}

// EscalationUpdatedPayload is the schema for escalations.updated messages.
type EscalationUpdatedPayload struct {
	EscalationID string `json:"escalation_id"`
	ProjectID    string `json:"project_id"`
	Status       string `json:"status"`
	ResolvedBy   string `json:"resolved_by,omitempty"`
}

// ActionResultPayload is the schema for actions.result messages.
type ActionResultPayload struct {
	ActionLogID  string          `json:"action_log_id"`
	ProjectID    string          `json:"project_id"`
	ActionType   string          `json:"action_type"`
	AgentID      string          `json:"agent_id,omitempty"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	TriggerEvent json.RawMessage `json:"trigger_event,omitempty"`
}
