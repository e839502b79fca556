package agentstate

import (
	"testing"
	"time"
)

func TestCountersAreIndependentPerAgent(t *testing.T) {
	tr := NewTracker()

	if got := tr.IncrementStuckAttempts("a"); got != 1 {
		t.Fatalf("first increment = %d, want 1", got)
	}
	if got := tr.IncrementStuckAttempts("a"); got != 2 {
		t.Fatalf("second increment = %d, want 2", got)
	}
	if got := tr.IncrementStuckAttempts("b"); got != 1 {
		t.Fatalf("other agent increment = %d, want 1", got)
	}

	tr.ResetStuckAttempts("a")
	if got := tr.GetState("a").StuckPromptAttempts; got != 0 {
		t.Errorf("after reset = %d, want 0", got)
	}
	if got := tr.GetState("b").StuckPromptAttempts; got != 1 {
		t.Errorf("other agent after reset = %d, want 1", got)
	}
}

func TestTaskRetriesKeyedByTask(t *testing.T) {
	tr := NewTracker()

	tr.IncrementTaskRetry("a", "t1")
	tr.IncrementTaskRetry("a", "t1")
	if got := tr.IncrementTaskRetry("a", "t2"); got != 1 {
		t.Errorf("t2 retries = %d, want 1", got)
	}

	tr.ResetTaskRetry("a", "t1")
	s := tr.GetState("a")
	if s.TaskRetryCounts["t1"] != 0 {
		t.Errorf("t1 after reset = %d, want 0", s.TaskRetryCounts["t1"])
	}
	if s.TaskRetryCounts["t2"] != 1 {
		t.Errorf("t2 after t1 reset = %d, want 1", s.TaskRetryCounts["t2"])
	}
}

func TestCrashCooldown(t *testing.T) {
	tr := NewTracker()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }

	// No recorded crash yet: always eligible.
	if !tr.CanRestartAfterCooldown("a", time.Minute) {
		t.Fatal("agent with no crash history should be restart eligible")
	}

	tr.RecordCrash("a")
	if tr.CanRestartAfterCooldown("a", time.Minute) {
		t.Fatal("restart should be blocked immediately after a crash")
	}

	clock = clock.Add(59 * time.Second)
	if tr.CanRestartAfterCooldown("a", time.Minute) {
		t.Fatal("restart should be blocked before the cooldown elapses")
	}

	clock = clock.Add(time.Second)
	if !tr.CanRestartAfterCooldown("a", time.Minute) {
		t.Fatal("restart should be allowed once the cooldown elapses")
	}

	if got := tr.GetState("a").CrashRestartCount; got != 1 {
		t.Errorf("CrashRestartCount = %d, want 1", got)
	}

	tr.ResetCrashCount("a")
	s := tr.GetState("a")
	if s.CrashRestartCount != 0 || !s.LastCrashAt.IsZero() {
		t.Errorf("after reset: count=%d lastCrash=%s", s.CrashRestartCount, s.LastCrashAt)
	}
}

func TestClearAgent(t *testing.T) {
	tr := NewTracker()
	tr.IncrementStuckAttempts("a")
	tr.IncrementTaskRetry("a", "t1")
	tr.RecordCrash("a")

	tr.ClearAgent("a")

	s := tr.GetState("a")
	if s.StuckPromptAttempts != 0 || s.CrashRestartCount != 0 || len(s.TaskRetryCounts) != 0 {
		t.Errorf("state after clear = %+v, want zero", s)
	}
}

func TestGetStateReturnsCopy(t *testing.T) {
	tr := NewTracker()
	tr.IncrementTaskRetry("a", "t1")

	s := tr.GetState("a")
	s.TaskRetryCounts["t1"] = 99

	if got := tr.GetState("a").TaskRetryCounts["t1"]; got != 1 {
		t.Errorf("mutating the snapshot leaked into the tracker: %d", got)
	}
}
