// Package policy holds the autonomy permission matrix and the threshold
// knobs consumed by the decision rules.
package policy

import "github.com/shepd/shepherd/internal/domain/decision"

// AutonomyLevel is a configured trust tier gating which autonomous actions
// the engine may take without human approval.
type AutonomyLevel string

const (
	LevelFullAuto   AutonomyLevel = "full_auto"
	LevelSupervised AutonomyLevel = "supervised"
	LevelAssisted   AutonomyLevel = "assisted"
	LevelManual     AutonomyLevel = "manual"
)

// permitted is the static permission matrix. Manual permits nothing and is
// represented by its absence.
var permitted = map[AutonomyLevel]map[decision.ActionType]bool{
	LevelFullAuto: {
		decision.ActionPromptAgent:            true,
		decision.ActionRestartAgent:           true,
		decision.ActionReassignTask:           true,
		decision.ActionRetryTask:              true,
		decision.ActionPauseAgent:             true,
		decision.ActionReleaseLock:            true,
		decision.ActionUpdateTaskStatus:       true,
		decision.ActionSaveCheckpointAndPause: true,
	},
	LevelSupervised: {
		decision.ActionPromptAgent:            true,
		decision.ActionRetryTask:              true,
		decision.ActionUpdateTaskStatus:       true,
		decision.ActionSaveCheckpointAndPause: true,
	},
	LevelAssisted: {
		decision.ActionPromptAgent:      true,
		decision.ActionUpdateTaskStatus: true,
	},
}

// CanActAutonomously reports whether the given autonomy level permits taking
// the action without human approval.
func CanActAutonomously(level AutonomyLevel, t decision.ActionType) bool {
	return permitted[level][t]
}

// ValidLevel reports whether s names a known autonomy level.
func ValidLevel(s string) bool {
	switch AutonomyLevel(s) {
	case LevelFullAuto, LevelSupervised, LevelAssisted, LevelManual:
		return true
	}
	return false
}
