package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventDecision          = "decision.made"
	EventEscalationCreated = "escalation.created"
	EventEscalationUpdated = "escalation.updated"
	EventActionResult      = "action.result"
)

// DecisionEvent is broadcast for every processed detection event.
type DecisionEvent struct {
	EventType  string `json:"event_type"`
	AgentID    string `json:"agent_id"`
	Verdict    string `json:"verdict"`
	ActionType string `json:"action_type,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Reason     string `json:"reason"`
}

// EscalationEvent is broadcast when an escalation is created or changes status.
type EscalationEvent struct {
	EscalationID string `json:"escalation_id"`
	ProjectID    string `json:"project_id"`
	Priority     string `json:"priority"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	AgentID      string `json:"agent_id,omitempty"`
	Status       string `json:"status"`
}

// ActionResultEvent is broadcast after an autonomous action executes.
type ActionResultEvent struct {
	ActionType string `json:"action_type"`
	AgentID    string `json:"agent_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BroadcastEvent marshals a typed event and broadcasts it to all clients.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
