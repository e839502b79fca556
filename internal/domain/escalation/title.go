package escalation

import (
	"fmt"

	"github.com/shepd/shepherd/internal/domain/detection"
)

// Describe derives the human-readable title and the optional suggested
// action for an escalation from its triggering event. The strings are part
// of the persisted record and are stable across releases.
func Describe(e detection.Event) (title, suggestedAction string) {
	agentID := e.Common().AgentID

	switch ev := e.(type) {
	case detection.AuthRequired:
		return fmt.Sprintf("Authentication required for %s", ev.Provider),
			"Complete OAuth flow in browser"
	case detection.Stuck:
		return fmt.Sprintf("Agent %s appears stuck", agentID),
			"Check agent logs and restart if needed"
	case detection.Crash:
		return fmt.Sprintf("Agent %s crashed", agentID),
			"Review crash logs and restart agent"
	case detection.Error:
		return fmt.Sprintf("Error in agent %s: %s", agentID, ev.Message), ""
	case detection.TestFailure:
		return fmt.Sprintf("Test failures in agent %s", agentID), ""
	case detection.BuildFailure:
		return fmt.Sprintf("Build failed for agent %s", agentID), ""
	case detection.RateLimited:
		return fmt.Sprintf("Agent %s rate limited by %s", agentID, ev.Provider), ""
	case detection.GitConflict:
		return fmt.Sprintf("Git conflict in agent %s", agentID),
			"Manually resolve git conflicts"
	case detection.HeartbeatTimeout:
		return fmt.Sprintf("Heartbeat timeout for agent %s", agentID), ""
	case detection.ContextExhaustion:
		return fmt.Sprintf("Context exhaustion for agent %s: %.1f%% tokens used (%d/%d)",
				agentID, ev.UsagePercent, ev.TokenCount, ev.TokenLimit),
			"Save checkpoint and start new session with fresh context"
	}
	panic(fmt.Sprintf("unhandled detection event kind %q", e.Kind()))
}
