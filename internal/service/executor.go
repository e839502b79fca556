package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	shepotel "github.com/shepd/shepherd/internal/adapter/otel"
	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
	"github.com/shepd/shepherd/internal/port/controlplane"
	"github.com/shepd/shepherd/internal/port/store"
)

// ActionListener receives every executed action, with its audit row, and
// its result synchronously.
type ActionListener func(l *action.Log, res action.Result)

// ActionExecutor dispatches autonomous actions to their remediation
// handlers, executes them against the control plane, and records every
// attempt through the audit logger. Handler failures are recovered into the
// returned Result; only audit persistence failures propagate as errors.
type ActionExecutor struct {
	cp         controlplane.Client
	restarter  controlplane.SandboxRestarter // nil when the capability is absent
	audit      store.ActionLogger
	projectID  string
	observerID string
	otel       *shepotel.Metrics
	now        func() time.Time

	mu        sync.Mutex
	listeners []ActionListener
}

// NewActionExecutor creates an executor for one project. restarter may be
// nil; restart actions then fail with a descriptive result.
func NewActionExecutor(
	cp controlplane.Client,
	restarter controlplane.SandboxRestarter,
	audit store.ActionLogger,
	projectID, observerID string,
) *ActionExecutor {
	return &ActionExecutor{
		cp:         cp,
		restarter:  restarter,
		audit:      audit,
		projectID:  projectID,
		observerID: observerID,
		now:        time.Now,
	}
}

// SetMetrics attaches OTel instruments. Optional; nil disables them.
func (x *ActionExecutor) SetMetrics(m *shepotel.Metrics) { x.otel = m }

// AddListener registers an action listener.
func (x *ActionExecutor) AddListener(l ActionListener) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.listeners = append(x.listeners, l)
}

// Execute logs the action, runs its handler, records the outcome on the
// audit row, notifies listeners, and returns the result. The audit row is
// written before the attempt so a crash mid-remediation still leaves a
// pending record behind.
func (x *ActionExecutor) Execute(ctx context.Context, a action.Action, trigger detection.Event) (action.Result, error) {
	logEntry, err := x.logAction(ctx, a, trigger)
	if err != nil {
		return action.Result{}, err
	}

	start := x.now()
	res := x.dispatch(ctx, a)

	outcome := action.OutcomeSuccess
	if !res.Success {
		outcome = action.OutcomeFailure
	}
	if err := x.audit.UpdateActionOutcome(ctx, logEntry.ID, outcome, res.Error); err != nil {
		return res, fmt.Errorf("update action outcome: %w", err)
	}
	logEntry.Outcome = outcome
	logEntry.OutcomeDetails = res.Error

	slog.Info("action executed",
		"action_type", a.Type,
		"agent_id", a.AgentID,
		"success", res.Success,
		"error", res.Error,
		"log_id", logEntry.ID,
	)
	if x.otel != nil {
		attrs := metric.WithAttributes(
			attribute.String("action.type", string(a.Type)),
			attribute.Bool("action.success", res.Success),
		)
		x.otel.Actions.Add(ctx, 1, attrs)
		x.otel.ActionDuration.Record(ctx, x.now().Sub(start).Seconds(), attrs)
	}

	x.mu.Lock()
	listeners := append([]ActionListener(nil), x.listeners...)
	x.mu.Unlock()
	for _, l := range listeners {
		l(logEntry, res)
	}

	return res, nil
}

// ExecuteAll runs the actions strictly in order, continuing past individual
// handler failures. Results are returned in input order. An empty input
// yields an empty result slice with no side effects.
func (x *ActionExecutor) ExecuteAll(ctx context.Context, actions []action.Action, trigger detection.Event) ([]action.Result, error) {
	results := make([]action.Result, 0, len(actions))
	for _, a := range actions {
		res, err := x.Execute(ctx, a, trigger)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Dispose drops all listeners. Safe to call repeatedly.
func (x *ActionExecutor) Dispose() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.listeners = nil
}

// logAction writes the pending audit row for an attempt.
func (x *ActionExecutor) logAction(ctx context.Context, a action.Action, trigger detection.Event) (*action.Log, error) {
	envelope, err := detection.Marshal(trigger)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger event: %w", err)
	}

	l := &action.Log{
		ID:           "act-" + uuid.NewString(),
		ProjectID:    x.projectID,
		ObserverID:   x.observerID,
		Action:       a,
		TriggerEvent: envelope,
		Outcome:      action.OutcomePending,
		CreatedAt:    x.now(),
	}
	if err := x.audit.CreateActionLog(ctx, l); err != nil {
		return nil, fmt.Errorf("log action: %w", err)
	}
	return l, nil
}

// dispatch routes the action to its handler and converts any handler error
// into a failed result. An unknown action type means a variant was added
// without a handler; that is an invariant violation, not a runtime failure.
func (x *ActionExecutor) dispatch(ctx context.Context, a action.Action) action.Result {
	var err error
	switch a.Type {
	case decision.ActionPromptAgent:
		err = x.promptAgent(ctx, a)
	case decision.ActionRestartAgent:
		err = x.restartAgent(ctx, a)
	case decision.ActionReassignTask:
		err = x.reassignTask(ctx, a)
	case decision.ActionRetryTask:
		err = x.retryTask(ctx, a)
	case decision.ActionPauseAgent:
		err = x.pauseAgent(ctx, a)
	case decision.ActionReleaseLock:
		err = x.releaseLock(ctx, a)
	case decision.ActionUpdateTaskStatus:
		err = x.updateTaskStatus(ctx, a)
	case decision.ActionSaveCheckpointAndPause:
		err = x.saveCheckpointAndPause(ctx, a)
	default:
		panic(fmt.Sprintf("unhandled action type %q", a.Type))
	}

	if err != nil {
		return action.Result{Success: false, Error: err.Error()}
	}
	return action.Result{Success: true}
}
