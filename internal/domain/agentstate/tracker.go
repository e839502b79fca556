// Package agentstate tracks per-agent remediation counters: stuck prompt
// attempts, per-task retries, and crash restarts with cooldown.
package agentstate

import (
	"sync"
	"time"
)

// State is a snapshot of one agent's tracked counters.
type State struct {
	StuckPromptAttempts int            `json:"stuck_prompt_attempts"`
	TaskRetryCounts     map[string]int `json:"task_retry_counts"`
	CrashRestartCount   int            `json:"crash_restart_count"`
	LastCrashAt         time.Time      `json:"last_crash_at,omitzero"`
}

// Tracker owns the per-agent state map. All methods are safe for concurrent
// use; state lives for the process lifetime unless cleared.
type Tracker struct {
	mu     sync.Mutex
	agents map[string]*State
	now    func() time.Time // for testing
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		agents: make(map[string]*State),
		now:    time.Now,
	}
}

// state must be called with t.mu held.
func (t *Tracker) state(agentID string) *State {
	s, ok := t.agents[agentID]
	if !ok {
		s = &State{TaskRetryCounts: make(map[string]int)}
		t.agents[agentID] = s
	}
	return s
}

// GetState returns a copy of the agent's state, creating it on first access.
func (t *Tracker) GetState(agentID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(agentID)
	cp := *s
	cp.TaskRetryCounts = make(map[string]int, len(s.TaskRetryCounts))
	for k, v := range s.TaskRetryCounts {
		cp.TaskRetryCounts[k] = v
	}
	return cp
}

// IncrementStuckAttempts bumps the stuck prompt counter and returns the new value.
func (t *Tracker) IncrementStuckAttempts(agentID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(agentID)
	s.StuckPromptAttempts++
	return s.StuckPromptAttempts
}

// ResetStuckAttempts clears the stuck prompt counter.
func (t *Tracker) ResetStuckAttempts(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state(agentID).StuckPromptAttempts = 0
}

// IncrementTaskRetry bumps the retry counter for one task and returns the
// new value. Counters are independent per (agent, task).
func (t *Tracker) IncrementTaskRetry(agentID, taskID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(agentID)
	s.TaskRetryCounts[taskID]++
	return s.TaskRetryCounts[taskID]
}

// ResetTaskRetry clears the retry counter for one task.
func (t *Tracker) ResetTaskRetry(agentID, taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state(agentID).TaskRetryCounts, taskID)
}

// RecordCrash increments the crash restart counter and stamps the crash time.
func (t *Tracker) RecordCrash(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(agentID)
	s.CrashRestartCount++
	s.LastCrashAt = t.now()
}

// CanRestartAfterCooldown reports whether enough time has passed since the
// last recorded crash. An agent with no recorded crash can always restart.
func (t *Tracker) CanRestartAfterCooldown(agentID string, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(agentID)
	if s.LastCrashAt.IsZero() {
		return true
	}
	return t.now().Sub(s.LastCrashAt) >= cooldown
}

// ResetCrashCount clears the crash counter and timestamp.
func (t *Tracker) ResetCrashCount(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(agentID)
	s.CrashRestartCount = 0
	s.LastCrashAt = time.Time{}
}

// ClearAgent removes all tracked state for the agent.
func (t *Tracker) ClearAgent(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.agents, agentID)
}
