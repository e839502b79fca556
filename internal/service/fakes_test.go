package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shepd/shepherd/internal/domain"
	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/escalation"
	"github.com/shepd/shepherd/internal/port/controlplane"
)

// fakeControlPlane records every call in order and fails any method whose
// name is present in failing.
type fakeControlPlane struct {
	mu      sync.Mutex
	calls   []string
	failing map[string]error
	agents  []controlplane.Agent
}

func newFakeControlPlane() *fakeControlPlane {
	return &fakeControlPlane{failing: make(map[string]error)}
}

func (f *fakeControlPlane) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	for name, err := range f.failing {
		if len(call) >= len(name) && call[:len(name)] == name {
			return err
		}
	}
	return nil
}

func (f *fakeControlPlane) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeControlPlane) SendHeartbeat(ctx context.Context, agentID string, status controlplane.AgentStatus) error {
	return f.record(fmt.Sprintf("heartbeat %s %s", agentID, status))
}

func (f *fakeControlPlane) UpdateTask(ctx context.Context, taskID string, u controlplane.TaskUpdate) error {
	return f.record(fmt.Sprintf("update_task %s %s", taskID, u.Status))
}

func (f *fakeControlPlane) UnlockFile(ctx context.Context, filePath, agentID string) error {
	return f.record(fmt.Sprintf("unlock %s %s", filePath, agentID))
}

func (f *fakeControlPlane) ListAgents(ctx context.Context) ([]controlplane.Agent, error) {
	if err := f.record("list_agents"); err != nil {
		return nil, err
	}
	return f.agents, nil
}

func (f *fakeControlPlane) SaveCheckpoint(ctx context.Context, agentID, taskID, stage string, tokenCount int) error {
	return f.record(fmt.Sprintf("checkpoint %s %s %s", agentID, taskID, stage))
}

// fakeRestarter satisfies controlplane.SandboxRestarter against the same
// call log.
type fakeRestarter struct {
	cp *fakeControlPlane
}

func (f *fakeRestarter) RestartSandbox(ctx context.Context, agentID string) error {
	return f.cp.record("restart " + agentID)
}

// memAudit is an in-memory ActionLogger.
type memAudit struct {
	mu        sync.Mutex
	logs      map[string]*action.Log
	order     []string
	createErr error
	updateErr error
}

func newMemAudit() *memAudit {
	return &memAudit{logs: make(map[string]*action.Log)}
}

func (m *memAudit) CreateActionLog(ctx context.Context, l *action.Log) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.logs[l.ID] = &cp
	m.order = append(m.order, l.ID)
	return nil
}

func (m *memAudit) UpdateActionOutcome(ctx context.Context, id string, outcome action.Outcome, details string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Outcome = outcome
	l.OutcomeDetails = details
	return nil
}

func (m *memAudit) RecordActionOverride(ctx context.Context, id string, o action.HumanOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Outcome = action.OutcomeOverridden
	l.HumanOverride = &o
	return nil
}

func (m *memAudit) GetActionLog(ctx context.Context, id string) (*action.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memAudit) ListActionsByProject(ctx context.Context, projectID string, outcome action.Outcome) ([]action.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []action.Log
	for i := len(m.order) - 1; i >= 0; i-- {
		l := m.logs[m.order[i]]
		if l.ProjectID != projectID {
			continue
		}
		if outcome != "" && l.Outcome != outcome {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (m *memAudit) ListActionsByAgent(ctx context.Context, projectID, agentID string) ([]action.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []action.Log
	for i := len(m.order) - 1; i >= 0; i-- {
		l := m.logs[m.order[i]]
		if l.ProjectID == projectID && l.Action.AgentID == agentID {
			out = append(out, *l)
		}
	}
	return out, nil
}

// memEscalations is an in-memory EscalationStore.
type memEscalations struct {
	mu        sync.Mutex
	rows      map[string]*escalation.Escalation
	order     []string
	createErr error
}

func newMemEscalations() *memEscalations {
	return &memEscalations{rows: make(map[string]*escalation.Escalation)}
}

func (m *memEscalations) CreateEscalation(ctx context.Context, e *escalation.Escalation) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.rows[e.ID] = &cp
	m.order = append(m.order, e.ID)
	return nil
}

func (m *memEscalations) GetEscalation(ctx context.Context, id string) (*escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEscalations) ListEscalations(ctx context.Context, projectID string, statuses ...escalation.Status) ([]escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []escalation.Escalation
	for _, id := range m.order {
		e := m.rows[id]
		if e.ProjectID != projectID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, s := range statuses {
				if e.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memEscalations) UpdateEscalation(ctx context.Context, e *escalation.Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[e.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *e
	m.rows[e.ID] = &cp
	return nil
}

func (m *memEscalations) CountEscalations(ctx context.Context, projectID string) (map[escalation.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[escalation.Status]int)
	for _, e := range m.rows {
		if e.ProjectID == projectID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

// memCache is an in-memory cache.Cache that counts its hits and misses.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	sets    int
	deletes int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.entries, key)
	return nil
}
