package policy

import (
	"testing"
	"time"

	"github.com/shepd/shepherd/internal/domain/decision"
)

func TestCanActAutonomously(t *testing.T) {
	cases := []struct {
		level  AutonomyLevel
		action decision.ActionType
		want   bool
	}{
		{LevelFullAuto, decision.ActionRestartAgent, true},
		{LevelFullAuto, decision.ActionReleaseLock, true},
		{LevelFullAuto, decision.ActionSaveCheckpointAndPause, true},
		{LevelSupervised, decision.ActionPromptAgent, true},
		{LevelSupervised, decision.ActionRetryTask, true},
		{LevelSupervised, decision.ActionSaveCheckpointAndPause, true},
		{LevelSupervised, decision.ActionRestartAgent, false},
		{LevelSupervised, decision.ActionPauseAgent, false},
		{LevelAssisted, decision.ActionPromptAgent, true},
		{LevelAssisted, decision.ActionUpdateTaskStatus, true},
		{LevelAssisted, decision.ActionRetryTask, false},
		{LevelManual, decision.ActionPromptAgent, false},
		{LevelManual, decision.ActionUpdateTaskStatus, false},
	}

	for _, tc := range cases {
		if got := CanActAutonomously(tc.level, tc.action); got != tc.want {
			t.Errorf("CanActAutonomously(%s, %s) = %v, want %v", tc.level, tc.action, got, tc.want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"full_auto", "supervised", "assisted", "manual"} {
		if !ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "FULL_AUTO", "auto", "yolo"} {
		if ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = true, want false", s)
		}
	}
}

func TestMergeEmptyOverridesKeepsDefaults(t *testing.T) {
	got := DefaultThresholds().Merge(Overrides{})
	if got != DefaultThresholds() {
		t.Errorf("empty merge changed thresholds: %+v", got)
	}
}

func TestMergeAppliesOnlySetFields(t *testing.T) {
	retries := 5
	cooldown := 90 * time.Second
	backoff := false

	got := DefaultThresholds().Merge(Overrides{
		TaskFailure: &TaskFailureOverrides{AutoRetryMax: &retries},
		AgentCrash:  &AgentCrashOverrides{Cooldown: &cooldown},
		RateLimit:   &RateLimitOverrides{AutoBackoff: &backoff},
	})

	if got.TaskFailure.AutoRetryMax != 5 {
		t.Errorf("AutoRetryMax = %d, want 5", got.TaskFailure.AutoRetryMax)
	}
	if got.AgentCrash.Cooldown != 90*time.Second {
		t.Errorf("Cooldown = %s, want 90s", got.AgentCrash.Cooldown)
	}
	if got.RateLimit.AutoBackoff {
		t.Error("AutoBackoff should be overridden to false")
	}

	// Siblings inside a partially overridden category keep their defaults.
	def := DefaultThresholds()
	if got.AgentCrash.AutoRestartMax != def.AgentCrash.AutoRestartMax {
		t.Errorf("AutoRestartMax = %d, want default %d", got.AgentCrash.AutoRestartMax, def.AgentCrash.AutoRestartMax)
	}
	if got.RateLimit.MaxBackoff != def.RateLimit.MaxBackoff {
		t.Errorf("MaxBackoff = %s, want default %s", got.RateLimit.MaxBackoff, def.RateLimit.MaxBackoff)
	}
	if got.Stuck != def.Stuck || got.Heartbeat != def.Heartbeat {
		t.Error("untouched categories should keep defaults")
	}
}
