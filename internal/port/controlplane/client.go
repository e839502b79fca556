// Package controlplane defines the port for the agent/task control plane the
// remediation handlers act against. The transport is an external
// collaborator; shepherd only depends on these call signatures.
package controlplane

import (
	"context"
	"time"
)

// AgentStatus is the status reported through a supervisor-sent heartbeat.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentBlocked AgentStatus = "blocked"
)

// TaskStatus is the set of task transitions the control plane accepts from
// this path. There is no pending/unassigned transition; reassignment leaves
// status untouched.
type TaskStatus string

const (
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
)

// TaskUpdate is a partial task mutation; zero-valued fields are left unchanged.
type TaskUpdate struct {
	Status     TaskStatus `json:"status,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	BlockedBy  string     `json:"blocked_by,omitempty"`
	TokensUsed int        `json:"tokens_used,omitempty"`
}

// Agent is a fleet member as reported by the control plane.
type Agent struct {
	ID            string      `json:"id"`
	SandboxID     string      `json:"sandbox_id"`
	Status        AgentStatus `json:"status"`
	TaskID        string      `json:"task_id,omitempty"`
	LastHeartbeat time.Time   `json:"last_heartbeat,omitzero"`
}

// Client is the control-plane contract the remediation handlers depend on.
type Client interface {
	// SendHeartbeat reports an agent status on the agent's behalf.
	SendHeartbeat(ctx context.Context, agentID string, status AgentStatus) error

	// UpdateTask applies a partial update to a task.
	UpdateTask(ctx context.Context, taskID string, update TaskUpdate) error

	// UnlockFile releases a distributed file lock held by an agent.
	UnlockFile(ctx context.Context, filePath, agentID string) error

	// ListAgents returns the current fleet.
	ListAgents(ctx context.Context) ([]Agent, error)

	// SaveCheckpoint persists a resumable checkpoint for an agent.
	// taskID may be empty when the agent holds no task.
	SaveCheckpoint(ctx context.Context, agentID, taskID, stage string, tokenCount int) error
}

// SandboxRestarter is the optional restart capability. Its absence at
// runtime is a legitimate condition, not a bug: restart actions then fail
// with a descriptive result.
type SandboxRestarter interface {
	RestartSandbox(ctx context.Context, agentID string) error
}
