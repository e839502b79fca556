package service

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	shepotel "github.com/shepd/shepherd/internal/adapter/otel"
	"github.com/shepd/shepherd/internal/domain/agentstate"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
	"github.com/shepd/shepherd/internal/domain/metrics"
	"github.com/shepd/shepherd/internal/domain/policy"
)

// DecisionListener receives every decision synchronously, in process order,
// before ProcessEvent returns.
type DecisionListener func(e detection.Event, d decision.Decision)

// DecisionEngine turns detection events into decisions, records them for
// metrics, and fans them out to listeners.
type DecisionEngine struct {
	rules      *Rules
	state      *agentstate.Tracker
	ledger     *metrics.Tracker
	thresholds policy.Thresholds
	level      policy.AutonomyLevel
	otel       *shepotel.Metrics

	mu        sync.Mutex
	listeners []DecisionListener
	disposed  bool
}

// NewDecisionEngine builds an engine with the default thresholds merged with
// the given overrides. An empty autonomy level defaults to full_auto.
func NewDecisionEngine(overrides policy.Overrides, level policy.AutonomyLevel) *DecisionEngine {
	if level == "" {
		level = policy.LevelFullAuto
	}
	thresholds := policy.DefaultThresholds().Merge(overrides)
	state := agentstate.NewTracker()

	return &DecisionEngine{
		rules:      NewRules(state, thresholds, level),
		state:      state,
		ledger:     metrics.NewTracker(),
		thresholds: thresholds,
		level:      level,
	}
}

// SetMetrics attaches OTel instruments. Optional; nil disables them.
func (e *DecisionEngine) SetMetrics(m *shepotel.Metrics) { e.otel = m }

// AddListener registers a decision listener.
func (e *DecisionEngine) AddListener(l DecisionListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// ProcessEvent decides on the event, records the decision in the metrics
// ledger, and notifies listeners. It returns the decision together with the
// ledger id used later by RecordOutcome/RecordOverride. A disposed engine
// still processes and records but no longer notifies.
func (e *DecisionEngine) ProcessEvent(ctx context.Context, ev detection.Event) (decision.Decision, string) {
	d := e.rules.Decide(ev)
	metricID := e.ledger.RecordDecision(ev, d)

	slog.Info("decision made",
		"event_type", ev.Kind(),
		"agent_id", ev.Common().AgentID,
		"verdict", d.Verdict,
		"action_type", d.ActionType,
		"priority", d.Priority,
	)

	if e.otel != nil {
		e.otel.Decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event.type", string(ev.Kind())),
			attribute.String("decision.verdict", string(d.Verdict)),
		))
	}

	e.mu.Lock()
	listeners := make([]DecisionListener, 0, len(e.listeners))
	if !e.disposed {
		listeners = append(listeners, e.listeners...)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(ev, d)
	}

	return d, metricID
}

// RecordOutcome resolves a tracked decision to success or failure.
func (e *DecisionEngine) RecordOutcome(id string, success bool, details string) {
	e.ledger.RecordOutcome(id, success, details)
}

// RecordOverride marks a tracked decision as overridden by a human.
func (e *DecisionEngine) RecordOverride(id, overriddenBy, overrideAction, reason string) {
	e.ledger.RecordOverride(id, overriddenBy, overrideAction, reason)
}

// Stats returns the decision statistics for one event type.
func (e *DecisionEngine) Stats(eventType detection.Kind) metrics.EventStats {
	return e.ledger.Stats(eventType)
}

// ThresholdSuggestions returns the current threshold-tuning suggestions.
func (e *DecisionEngine) ThresholdSuggestions() []metrics.Suggestion {
	return e.ledger.ThresholdSuggestions()
}

// Thresholds returns the engine's merged thresholds.
func (e *DecisionEngine) Thresholds() policy.Thresholds { return e.thresholds }

// ResetAgentState drops all tracked counters for one agent.
func (e *DecisionEngine) ResetAgentState(agentID string) {
	e.state.ClearAgent(agentID)
}

// Dispose suppresses future listener notification and drops all listeners.
// Safe to call repeatedly.
func (e *DecisionEngine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
	e.listeners = nil
}
