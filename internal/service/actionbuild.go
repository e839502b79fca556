package service

import (
	"fmt"

	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
)

// BuildAction turns an autonomous decision back into a fully parameterized
// action for the executor, pulling per-type parameters from the triggering
// event. Only the action kinds the rules emit are mapped; anything else is
// an invariant violation.
func BuildAction(e detection.Event, d decision.Decision) action.Action {
	base := e.Common()

	switch d.ActionType {
	case decision.ActionPromptAgent:
		return action.Action{
			Type:    decision.ActionPromptAgent,
			AgentID: base.AgentID,
			Message: promptMessage(e),
		}

	case decision.ActionRestartAgent:
		return action.Action{
			Type:    decision.ActionRestartAgent,
			AgentID: base.AgentID,
		}

	case decision.ActionRetryTask:
		return action.Action{
			Type:    decision.ActionRetryTask,
			AgentID: base.AgentID,
			TaskID:  syntheticTestTaskID(base.AgentID),
		}

	case decision.ActionPauseAgent:
		return action.Action{
			Type:    decision.ActionPauseAgent,
			AgentID: base.AgentID,
			Reason:  d.Reason,
		}

	case decision.ActionSaveCheckpointAndPause:
		ev, ok := e.(detection.ContextExhaustion)
		if !ok {
			panic(fmt.Sprintf("save_checkpoint_and_pause built from %q event", e.Kind()))
		}
		return action.Action{
			Type:       decision.ActionSaveCheckpointAndPause,
			AgentID:    base.AgentID,
			TaskID:     ev.TaskID,
			TokenCount: ev.TokenCount,
			TokenLimit: ev.TokenLimit,
			Stage:      "context-exhaustion",
		}
	}

	panic(fmt.Sprintf("no action builder for action type %q", d.ActionType))
}

// promptMessage composes the nudge text sent to an agent for the event
// kinds that resolve to prompt_agent.
func promptMessage(e detection.Event) string {
	switch ev := e.(type) {
	case detection.Stuck:
		return "You have been silent for a while. Describe your current blocker and continue with the task."
	case detection.BuildFailure:
		return "The build is failing. Review the build output and fix the errors before continuing."
	case detection.Error:
		return fmt.Sprintf("A %s was reported in your console: %s. Please address it.", ev.Severity, ev.Message)
	case detection.HeartbeatTimeout:
		return "No heartbeat received recently. Confirm you are still making progress."
	default:
		return "Please report your current status and continue with the task."
	}
}
