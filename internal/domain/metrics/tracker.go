// Package metrics keeps an in-memory ledger of every decision and its
// eventual outcome, and mines it for threshold-tuning suggestions.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
)

// DecisionKind classifies a record by how the engine ruled.
type DecisionKind string

const (
	DecisionAutonomous DecisionKind = "autonomous"
	DecisionEscalated  DecisionKind = "escalated"
)

// Record is one ledger entry. Records are ephemeral: they live for the
// process lifetime and are never persisted.
type Record struct {
	ID             string                `json:"id"`
	EventType      detection.Kind        `json:"event_type"`
	Decision       DecisionKind          `json:"decision"`
	ActionType     decision.ActionType   `json:"action_type,omitempty"`
	Outcome        action.Outcome        `json:"outcome"`
	OutcomeDetails string                `json:"outcome_details,omitempty"`
	HumanOverride  *action.HumanOverride `json:"human_override,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
}

// EventStats summarizes all records of one event type. Success and failure
// rates are percentages over autonomous records with a resolved outcome;
// the override rate is over all records of the type.
type EventStats struct {
	EventType    detection.Kind `json:"event_type"`
	Total        int            `json:"total"`
	Autonomous   int            `json:"autonomous"`
	Escalated    int            `json:"escalated"`
	SuccessRate  float64        `json:"success_rate"`
	FailureRate  float64        `json:"failure_rate"`
	OverrideRate float64        `json:"override_rate"`
}

// Suggestion recommends tightening one threshold based on observed failures.
type Suggestion struct {
	Category   string  `json:"category"`
	Field      string  `json:"field"`
	Suggestion string  `json:"suggestion"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Minimum autonomous sample size and failure-rate floor before a suggestion
// is emitted.
const (
	suggestionMinSamples     = 10
	suggestionFailurePercent = 70.0
)

// Tracker is the append-only decision ledger. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	records []*Record
	byID    map[string]*Record
	now     func() time.Time // for testing
}

// NewTracker creates an empty ledger.
func NewTracker() *Tracker {
	return &Tracker{
		byID: make(map[string]*Record),
		now:  time.Now,
	}
}

// RecordDecision appends a pending record for the event and decision and
// returns its id.
func (t *Tracker) RecordDecision(e detection.Event, d decision.Decision) string {
	r := &Record{
		ID:        uuid.NewString(),
		EventType: e.Kind(),
		Decision:  DecisionAutonomous,
		Outcome:   action.OutcomePending,
		Timestamp: t.now(),
	}
	if d.IsEscalation() {
		r.Decision = DecisionEscalated
	} else {
		r.ActionType = d.ActionType
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, r)
	t.byID[r.ID] = r
	return r.ID
}

// RecordOutcome resolves a record to success or failure. Unknown ids are
// ignored.
func (t *Tracker) RecordOutcome(id string, success bool, details string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.byID[id]
	if !ok {
		return
	}
	if success {
		r.Outcome = action.OutcomeSuccess
	} else {
		r.Outcome = action.OutcomeFailure
	}
	r.OutcomeDetails = details
}

// RecordOverride marks a record as overridden by a human. Unknown ids are
// ignored.
func (t *Tracker) RecordOverride(id, overriddenBy, overrideAction, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.byID[id]
	if !ok {
		return
	}
	r.Outcome = action.OutcomeOverridden
	r.HumanOverride = &action.HumanOverride{
		OverriddenBy:   overriddenBy,
		OverrideAction: overrideAction,
		Reason:         reason,
	}
}

// Stats computes the summary for one event type. An event type with no
// records yields all-zero stats.
func (t *Tracker) Stats(eventType detection.Kind) EventStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked(eventType)
}

// statsLocked must be called with t.mu held.
func (t *Tracker) statsLocked(eventType detection.Kind) EventStats {
	stats := EventStats{EventType: eventType}

	var resolved, succeeded, overridden int
	for _, r := range t.records {
		if r.EventType != eventType {
			continue
		}
		stats.Total++
		switch r.Decision {
		case DecisionAutonomous:
			stats.Autonomous++
		case DecisionEscalated:
			stats.Escalated++
		}
		if r.Outcome == action.OutcomeOverridden {
			overridden++
		}
		// Pending and overridden outcomes are excluded from the
		// success/failure denominator.
		if r.Decision == DecisionAutonomous {
			switch r.Outcome {
			case action.OutcomeSuccess:
				resolved++
				succeeded++
			case action.OutcomeFailure:
				resolved++
			}
		}
	}

	if resolved > 0 {
		stats.SuccessRate = float64(succeeded) / float64(resolved) * 100
		stats.FailureRate = float64(resolved-succeeded) / float64(resolved) * 100
	}
	if stats.Total > 0 {
		stats.OverrideRate = float64(overridden) / float64(stats.Total) * 100
	}
	return stats
}

// tunable maps the event types that feed suggestions to the threshold knob
// they would tighten.
var tunable = []struct {
	eventType detection.Kind
	category  string
	field     string
}{
	{detection.KindTestFailure, "task_failure", "auto_retry_max"},
	{detection.KindStuck, "stuck", "escalate_after_attempts"},
	{detection.KindCrash, "agent_crash", "auto_restart_max"},
}

// ThresholdSuggestions returns a decrease recommendation for every tunable
// threshold whose autonomous remediation keeps failing: at least
// suggestionMinSamples autonomous decisions with a failure rate at or above
// suggestionFailurePercent.
func (t *Tracker) ThresholdSuggestions() []Suggestion {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Suggestion
	for _, tn := range tunable {
		stats := t.statsLocked(tn.eventType)
		if stats.Autonomous < suggestionMinSamples || stats.FailureRate < suggestionFailurePercent {
			continue
		}
		confidence := float64(stats.Autonomous) / 20
		if confidence > 1 {
			confidence = 1
		}
		out = append(out, Suggestion{
			Category:   tn.category,
			Field:      tn.field,
			Suggestion: "decrease",
			Reason: fmt.Sprintf("%.1f%% of autonomous %s remediations failed over %d attempts",
				stats.FailureRate, tn.eventType, stats.Autonomous),
			Confidence: confidence,
		})
	}
	return out
}

// Clear wipes the ledger.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
	t.byID = make(map[string]*Record)
}
