package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shepd/shepherd/internal/adapter/ws"
	"github.com/shepd/shepherd/internal/domain"
	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
	"github.com/shepd/shepherd/internal/domain/escalation"
	"github.com/shepd/shepherd/internal/domain/policy"
	"github.com/shepd/shepherd/internal/port/controlplane"
	"github.com/shepd/shepherd/internal/port/messagequeue"
	"github.com/shepd/shepherd/internal/service"
)

// memStore is an in-memory EscalationStore and ActionLogger.
type memStore struct {
	mu          sync.Mutex
	escalations map[string]escalation.Escalation
	actions     map[string]action.Log
}

func newMemStore() *memStore {
	return &memStore{
		escalations: make(map[string]escalation.Escalation),
		actions:     make(map[string]action.Log),
	}
}

func (m *memStore) CreateEscalation(_ context.Context, e *escalation.Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[e.ID] = *e
	return nil
}

func (m *memStore) GetEscalation(_ context.Context, id string) (*escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escalations[id]
	if !ok {
		return nil, fmt.Errorf("escalation %s: %w", id, domain.ErrNotFound)
	}
	return &e, nil
}

func priorityRank(p decision.Priority) int {
	switch p {
	case decision.PriorityCritical:
		return 0
	case decision.PriorityHigh:
		return 1
	default:
		return 2
	}
}

func (m *memStore) ListEscalations(_ context.Context, projectID string, statuses ...escalation.Status) ([]escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []escalation.Escalation
	for _, e := range m.escalations {
		if e.ProjectID != projectID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if e.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := priorityRank(out[i].Priority), priorityRank(out[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memStore) UpdateEscalation(_ context.Context, e *escalation.Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.escalations[e.ID]; !ok {
		return fmt.Errorf("escalation %s: %w", e.ID, domain.ErrNotFound)
	}
	m.escalations[e.ID] = *e
	return nil
}

func (m *memStore) CountEscalations(_ context.Context, projectID string) (map[escalation.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[escalation.Status]int)
	for _, e := range m.escalations {
		if e.ProjectID == projectID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (m *memStore) CreateActionLog(_ context.Context, l *action.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[l.ID] = *l
	return nil
}

func (m *memStore) UpdateActionOutcome(_ context.Context, id string, outcome action.Outcome, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.actions[id]
	if !ok {
		return fmt.Errorf("action %s: %w", id, domain.ErrNotFound)
	}
	l.Outcome = outcome
	l.OutcomeDetails = details
	m.actions[id] = l
	return nil
}

func (m *memStore) RecordActionOverride(_ context.Context, id string, o action.HumanOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.actions[id]
	if !ok {
		return fmt.Errorf("action %s: %w", id, domain.ErrNotFound)
	}
	l.Outcome = action.OutcomeOverridden
	l.HumanOverride = &o
	m.actions[id] = l
	return nil
}

func (m *memStore) GetActionLog(_ context.Context, id string) (*action.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.actions[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, domain.ErrNotFound)
	}
	return &l, nil
}

func (m *memStore) ListActionsByProject(_ context.Context, projectID string, outcome action.Outcome) ([]action.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []action.Log
	for _, l := range m.actions {
		if l.ProjectID != projectID {
			continue
		}
		if outcome != "" && l.Outcome != outcome {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ListActionsByAgent(_ context.Context, projectID, agentID string) ([]action.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []action.Log
	for _, l := range m.actions {
		if l.ProjectID == projectID && l.Action.AgentID == agentID {
			out = append(out, l)
		}
	}
	return out, nil
}

// fakeControlPlane accepts every call.
type fakeControlPlane struct{}

func (fakeControlPlane) SendHeartbeat(context.Context, string, controlplane.AgentStatus) error {
	return nil
}
func (fakeControlPlane) UpdateTask(context.Context, string, controlplane.TaskUpdate) error {
	return nil
}
func (fakeControlPlane) UnlockFile(context.Context, string, string) error { return nil }
func (fakeControlPlane) ListAgents(context.Context) ([]controlplane.Agent, error) {
	return []controlplane.Agent{{ID: "agent-1", Status: controlplane.AgentWorking}}, nil
}
func (fakeControlPlane) SaveCheckpoint(context.Context, string, string, string, int) error {
	return nil
}

// fakeQueue satisfies messagequeue.Queue for health checks.
type fakeQueue struct{}

func (fakeQueue) Publish(context.Context, string, []byte) error { return nil }
func (fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (fakeQueue) Drain() error      { return nil }
func (fakeQueue) Close() error      { return nil }
func (fakeQueue) IsConnected() bool { return true }

const testProject = "proj-test"

func newTestRouter(t *testing.T) (chi.Router, *memStore) {
	t.Helper()

	st := newMemStore()
	engine := service.NewDecisionEngine(policy.Overrides{}, "")
	queue := service.NewEscalationQueue(st, nil, nil, testProject)
	executor := service.NewActionExecutor(fakeControlPlane{}, nil, st, testProject, "observer-test")
	intake := service.NewIntake(fakeQueue{}, engine, executor, queue)
	h := NewHandlers(engine, queue, intake, st, fakeControlPlane{}, fakeQueue{}, ws.NewHub(), testProject)

	r := chi.NewRouter()
	MountRoutes(r, h)
	return r, st
}

func doRequest(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doRequest(t, r, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status        string `json:"status"`
		NATSConnected bool   `json:"nats_connected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || !body.NATSConnected {
		t.Errorf("body = %+v", body)
	}
}

func TestInjectEventEscalates(t *testing.T) {
	r, _ := newTestRouter(t)

	envelope, err := detection.Marshal(detection.AuthRequired{
		Base:     detection.Base{AgentID: "agent-1", Timestamp: time.Now().UTC()},
		Provider: "anthropic",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(envelope))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var d decision.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if d.Verdict != decision.VerdictEscalate || d.Priority != decision.PriorityCritical {
		t.Errorf("decision = %+v", d)
	}

	pending := doRequest(t, r, http.MethodGet, "/api/v1/escalations/pending", nil)
	var list []escalation.Escalation
	if err := json.Unmarshal(pending.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Type != detection.KindAuthRequired {
		t.Errorf("pending = %+v", list)
	}
}

func TestEscalationLifecycleViaAPI(t *testing.T) {
	r, _ := newTestRouter(t)

	envelope, _ := detection.Marshal(detection.GitConflict{
		Base:  detection.Base{AgentID: "agent-2", Timestamp: time.Now().UTC()},
		Files: []string{"main.go"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(envelope))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("inject status = %d", rec.Code)
	}

	pending := doRequest(t, r, http.MethodGet, "/api/v1/escalations/pending", nil)
	var list []escalation.Escalation
	if err := json.Unmarshal(pending.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("pending = %d, want 1", len(list))
	}
	id := list[0].ID

	ack := doRequest(t, r, http.MethodPost, "/api/v1/escalations/"+id+"/acknowledge", nil)
	if ack.Code != http.StatusOK {
		t.Fatalf("acknowledge status = %d", ack.Code)
	}

	// Resolve without resolved_by is rejected.
	bad := doRequest(t, r, http.MethodPost, "/api/v1/escalations/"+id+"/resolve", map[string]string{})
	if bad.Code != http.StatusBadRequest {
		t.Errorf("resolve without resolver: status = %d", bad.Code)
	}

	res := doRequest(t, r, http.MethodPost, "/api/v1/escalations/"+id+"/resolve", map[string]string{
		"resolved_by": "operator",
		"resolution":  "rebased manually",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body %s", res.Code, res.Body.String())
	}

	// A second resolve violates the lifecycle.
	again := doRequest(t, r, http.MethodPost, "/api/v1/escalations/"+id+"/resolve", map[string]string{
		"resolved_by": "operator",
	})
	if again.Code != http.StatusBadRequest {
		t.Errorf("double resolve: status = %d", again.Code)
	}

	counts := doRequest(t, r, http.MethodGet, "/api/v1/escalations/counts", nil)
	var c map[escalation.Status]int
	if err := json.Unmarshal(counts.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if c[escalation.StatusResolved] != 1 {
		t.Errorf("counts = %v", c)
	}
}

func TestListEscalationsRejectsUnknownStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doRequest(t, r, http.MethodGet, "/api/v1/escalations?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestActionAuditAndOverride(t *testing.T) {
	r, st := newTestRouter(t)

	// A crash inside thresholds triggers an autonomous restart, which must
	// leave an audit row.
	envelope, _ := detection.Marshal(detection.Crash{
		Base:     detection.Base{AgentID: "agent-3", Timestamp: time.Now().UTC()},
		ExitCode: 1,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(envelope))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("inject status = %d", rec.Code)
	}

	actions := doRequest(t, r, http.MethodGet, "/api/v1/actions", nil)
	var list []action.Log
	if err := json.Unmarshal(actions.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Action.Type != decision.ActionRestartAgent {
		t.Fatalf("actions = %+v", list)
	}
	id := list[0].ID

	over := doRequest(t, r, http.MethodPost, "/api/v1/actions/"+id+"/override", map[string]string{
		"overridden_by":   "operator",
		"override_action": "pause_agent",
		"reason":          "known flaky sandbox",
	})
	if over.Code != http.StatusOK {
		t.Fatalf("override status = %d, body %s", over.Code, over.Body.String())
	}

	got, err := st.GetActionLog(context.Background(), id)
	if err != nil {
		t.Fatalf("GetActionLog: %v", err)
	}
	if got.Outcome != action.OutcomeOverridden || got.HumanOverride == nil {
		t.Errorf("log = %+v", got)
	}

	byAgent := doRequest(t, r, http.MethodGet, "/api/v1/agents/agent-3/actions", nil)
	if err := json.Unmarshal(byAgent.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("agent actions = %d, want 1", len(list))
	}
}

func TestMetricsStatsRequiresEventType(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doRequest(t, r, http.MethodGet, "/api/v1/metrics/stats", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doRequest(t, r, http.MethodGet, "/api/v1/metrics/stats?event_type=crash", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListAgents(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doRequest(t, r, http.MethodGet, "/api/v1/agents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var agents []controlplane.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agents); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(agents) != 1 || agents[0].ID != "agent-1" {
		t.Errorf("agents = %+v", agents)
	}
}
