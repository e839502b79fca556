package service

import (
	"fmt"
	"time"

	"github.com/shepd/shepherd/internal/domain/agentstate"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
	"github.com/shepd/shepherd/internal/domain/policy"
)

// Rules turns one detection event into a decision. The only state it touches
// is the injected agent tracker; thresholds and the autonomy level are fixed
// at construction.
type Rules struct {
	state      *agentstate.Tracker
	thresholds policy.Thresholds
	level      policy.AutonomyLevel
}

// NewRules creates the decision rules for one engine instance.
func NewRules(state *agentstate.Tracker, thresholds policy.Thresholds, level policy.AutonomyLevel) *Rules {
	return &Rules{state: state, thresholds: thresholds, level: level}
}

// Decide evaluates the event against the thresholds and tracked state, then
// applies the autonomy filter: an autonomous verdict whose action the
// current level does not permit is rewritten to a high-priority escalation
// before any caller can observe it.
func (r *Rules) Decide(e detection.Event) decision.Decision {
	d := r.evaluate(e)

	if !d.IsEscalation() && !policy.CanActAutonomously(r.level, d.ActionType) {
		return decision.Escalate(decision.PriorityHigh,
			fmt.Sprintf("Action %s not permitted at %s autonomy level", d.ActionType, r.level))
	}
	return d
}

func (r *Rules) evaluate(e detection.Event) decision.Decision {
	agentID := e.Common().AgentID

	switch ev := e.(type) {
	case detection.Stuck:
		attempts := r.state.IncrementStuckAttempts(agentID)
		if attempts <= r.thresholds.Stuck.EscalateAfterAttempts {
			return decision.Autonomous(decision.ActionPromptAgent,
				fmt.Sprintf("Agent silent for %s, prompting (attempt %d/%d)",
					time.Duration(ev.SilentDurationMs)*time.Millisecond,
					attempts, r.thresholds.Stuck.EscalateAfterAttempts))
		}
		return decision.Escalate(decision.PriorityHigh,
			fmt.Sprintf("Agent still stuck after %d prompts", attempts-1))

	case detection.Crash:
		// Eligibility is computed before the crash is recorded so the very
		// first crash for an agent is always restart-eligible.
		cooldownPassed := r.state.CanRestartAfterCooldown(agentID, r.thresholds.AgentCrash.Cooldown)
		countAllows := r.state.GetState(agentID).CrashRestartCount < r.thresholds.AgentCrash.AutoRestartMax
		r.state.RecordCrash(agentID)

		if cooldownPassed && countAllows {
			return decision.Autonomous(decision.ActionRestartAgent,
				fmt.Sprintf("Agent exited with code %d, restarting", ev.ExitCode))
		}
		if !cooldownPassed {
			return decision.Escalate(decision.PriorityHigh,
				"Agent crashed again before the restart cooldown elapsed")
		}
		return decision.Escalate(decision.PriorityHigh,
			fmt.Sprintf("Agent exceeded %d automatic restarts", r.thresholds.AgentCrash.AutoRestartMax))

	case detection.AuthRequired:
		// Never autonomous: a human has to complete the OAuth flow.
		return decision.Escalate(decision.PriorityCritical,
			fmt.Sprintf("Agent blocked on %s authentication", ev.Provider))

	case detection.TestFailure:
		taskID := syntheticTestTaskID(agentID)
		retries := r.state.IncrementTaskRetry(agentID, taskID)
		if retries <= r.thresholds.TaskFailure.AutoRetryMax {
			return decision.Autonomous(decision.ActionRetryTask,
				fmt.Sprintf("%d tests failing, retrying (attempt %d/%d)",
					len(ev.FailedTests), retries, r.thresholds.TaskFailure.AutoRetryMax))
		}
		return decision.Escalate(decision.PriorityNormal,
			fmt.Sprintf("Tests still failing after %d automatic retries", r.thresholds.TaskFailure.AutoRetryMax))

	case detection.BuildFailure:
		return decision.Autonomous(decision.ActionPromptAgent,
			"Build failed, prompting agent to fix it")

	case detection.RateLimited:
		if r.thresholds.RateLimit.AutoBackoff {
			return decision.Autonomous(decision.ActionPauseAgent,
				fmt.Sprintf("Rate limited by %s, pausing for backoff", ev.Provider))
		}
		return decision.Escalate(decision.PriorityNormal,
			fmt.Sprintf("Rate limited by %s and automatic backoff is disabled", ev.Provider))

	case detection.Error:
		if ev.Severity == detection.SeverityFatal {
			return decision.Escalate(decision.PriorityCritical,
				fmt.Sprintf("Fatal error: %s", ev.Message))
		}
		return decision.Autonomous(decision.ActionPromptAgent,
			fmt.Sprintf("Recoverable %s, prompting agent", ev.Severity))

	case detection.GitConflict:
		return decision.Escalate(decision.PriorityNormal,
			fmt.Sprintf("Merge conflicts in %d files need manual resolution", len(ev.Files)))

	case detection.HeartbeatTimeout:
		if r.thresholds.Heartbeat.PingBeforeRestart {
			return decision.Autonomous(decision.ActionPromptAgent,
				"Heartbeat timed out, pinging agent before restarting")
		}
		return decision.Autonomous(decision.ActionRestartAgent,
			"Heartbeat timed out, restarting agent")

	case detection.ContextExhaustion:
		return decision.Autonomous(decision.ActionSaveCheckpointAndPause,
			fmt.Sprintf("Context window %.1f%% used (%d/%d tokens), checkpointing",
				ev.UsagePercent, ev.TokenCount, ev.TokenLimit))
	}

	panic(fmt.Sprintf("unhandled detection event kind %q", e.Kind()))
}

// syntheticTestTaskID keys test-failure retries when no real task id is
// attached to the event.
func syntheticTestTaskID(agentID string) string {
	return "test-task-" + agentID
}
