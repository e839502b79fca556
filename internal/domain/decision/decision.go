// Package decision defines the engine's verdict type: act autonomously with
// a specific remediation, or escalate to a human with a priority.
package decision

// ActionType identifies an autonomous remediation kind.
type ActionType string

const (
	ActionPromptAgent            ActionType = "prompt_agent"
	ActionRestartAgent           ActionType = "restart_agent"
	ActionReassignTask           ActionType = "reassign_task"
	ActionRetryTask              ActionType = "retry_task"
	ActionPauseAgent             ActionType = "pause_agent"
	ActionReleaseLock            ActionType = "release_lock"
	ActionUpdateTaskStatus       ActionType = "update_task_status"
	ActionSaveCheckpointAndPause ActionType = "save_checkpoint_and_pause"
)

// Priority ranks an escalation for human triage.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
)

// Verdict discriminates the two decision variants.
type Verdict string

const (
	VerdictAutonomous Verdict = "autonomous"
	VerdictEscalate   Verdict = "escalate"
)

// Decision is the outcome of evaluating one detection event.
// ActionType is set only for autonomous decisions, Priority only for
// escalations.
type Decision struct {
	Verdict    Verdict    `json:"verdict"`
	ActionType ActionType `json:"action_type,omitempty"`
	Priority   Priority   `json:"priority,omitempty"`
	Reason     string     `json:"reason"`
}

// Autonomous builds an autonomous decision.
func Autonomous(t ActionType, reason string) Decision {
	return Decision{Verdict: VerdictAutonomous, ActionType: t, Reason: reason}
}

// Escalate builds an escalation decision.
func Escalate(p Priority, reason string) Decision {
	return Decision{Verdict: VerdictEscalate, Priority: p, Reason: reason}
}

// IsEscalation reports whether the decision defers to a human.
func (d Decision) IsEscalation() bool { return d.Verdict == VerdictEscalate }
