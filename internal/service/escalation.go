package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	shepotel "github.com/shepd/shepherd/internal/adapter/otel"
	"github.com/shepd/shepherd/internal/adapter/ws"
	"github.com/shepd/shepherd/internal/domain"
	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
	"github.com/shepd/shepherd/internal/domain/escalation"
	"github.com/shepd/shepherd/internal/port/broadcast"
	"github.com/shepd/shepherd/internal/port/cache"
	"github.com/shepd/shepherd/internal/port/store"
)

// countsTTL bounds staleness of the cached per-status escalation counts.
const countsTTL = 15 * time.Second

// EscalationListener receives every created escalation synchronously.
type EscalationListener func(e *escalation.Escalation)

// EscalationQueue persists escalated events for human handling and drives
// their lifecycle.
type EscalationQueue struct {
	store     store.EscalationStore
	hub       broadcast.Broadcaster
	cache     cache.Cache // optional count cache, may be nil
	projectID string
	otel      *shepotel.Metrics
	now       func() time.Time

	mu        sync.Mutex
	listeners []EscalationListener
}

// NewEscalationQueue creates a queue for one project. hub and countCache may
// be nil.
func NewEscalationQueue(st store.EscalationStore, hub broadcast.Broadcaster, countCache cache.Cache, projectID string) *EscalationQueue {
	return &EscalationQueue{
		store:     st,
		hub:       hub,
		cache:     countCache,
		projectID: projectID,
		now:       time.Now,
	}
}

// SetMetrics attaches OTel instruments. Optional; nil disables them.
func (q *EscalationQueue) SetMetrics(m *shepotel.Metrics) { q.otel = m }

// AddListener registers an escalation listener.
func (q *EscalationQueue) AddListener(l EscalationListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// CreateEscalation persists a new escalation derived from the event and
// decision, then notifies listeners and connected clients. Passing a
// non-escalate decision is a programmer error and fails with
// domain.ErrValidation.
func (q *EscalationQueue) CreateEscalation(
	ctx context.Context,
	e detection.Event,
	d decision.Decision,
	consoleOutput string,
	attemptedActions []action.Log,
) (*escalation.Escalation, error) {
	if !d.IsEscalation() {
		return nil, fmt.Errorf("%w: cannot create escalation from %s decision", domain.ErrValidation, d.Verdict)
	}

	envelope, err := detection.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal detection event: %w", err)
	}

	title, suggested := escalation.Describe(e)
	esc := &escalation.Escalation{
		ID:               "esc-" + uuid.NewString(),
		ProjectID:        q.projectID,
		Priority:         d.Priority,
		Type:             e.Kind(),
		Title:            title,
		AgentID:          e.Common().AgentID,
		TaskID:           eventTaskID(e),
		DetectionEvent:   envelope,
		ConsoleOutput:    consoleOutput,
		AttemptedActions: attemptedActions,
		SuggestedAction:  suggested,
		Status:           escalation.StatusPending,
		CreatedAt:        q.now(),
	}

	if err := q.store.CreateEscalation(ctx, esc); err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}
	q.invalidateCounts(ctx)

	slog.Info("escalation created",
		"escalation_id", esc.ID,
		"event_type", esc.Type,
		"priority", esc.Priority,
		"agent_id", esc.AgentID,
	)
	if q.otel != nil {
		q.otel.Escalations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event.type", string(esc.Type)),
			attribute.String("priority", string(esc.Priority)),
		))
	}
	if q.hub != nil {
		q.hub.BroadcastEvent(ctx, ws.EventEscalationCreated, ws.EscalationEvent{
			EscalationID: esc.ID,
			ProjectID:    esc.ProjectID,
			Priority:     string(esc.Priority),
			Type:         string(esc.Type),
			Title:        esc.Title,
			AgentID:      esc.AgentID,
			Status:       string(esc.Status),
		})
	}

	q.mu.Lock()
	listeners := append([]EscalationListener(nil), q.listeners...)
	q.mu.Unlock()
	for _, l := range listeners {
		l(esc)
	}

	return esc, nil
}

// Get returns an escalation by id.
func (q *EscalationQueue) Get(ctx context.Context, id string) (*escalation.Escalation, error) {
	return q.store.GetEscalation(ctx, id)
}

// Pending returns escalations awaiting human attention, ordered by priority
// then age.
func (q *EscalationQueue) Pending(ctx context.Context) ([]escalation.Escalation, error) {
	return q.store.ListEscalations(ctx, q.projectID, escalation.StatusPending)
}

// All returns every escalation for the project.
func (q *EscalationQueue) All(ctx context.Context) ([]escalation.Escalation, error) {
	return q.store.ListEscalations(ctx, q.projectID)
}

// ByStatus returns the project's escalations in the given statuses.
func (q *EscalationQueue) ByStatus(ctx context.Context, statuses ...escalation.Status) ([]escalation.Escalation, error) {
	return q.store.ListEscalations(ctx, q.projectID, statuses...)
}

// Acknowledge moves a pending escalation to acknowledged.
func (q *EscalationQueue) Acknowledge(ctx context.Context, id string) (*escalation.Escalation, error) {
	return q.transition(ctx, id, escalation.StatusAcknowledged, "", "")
}

// Resolve closes an escalation with the resolver's identity and summary.
func (q *EscalationQueue) Resolve(ctx context.Context, id, resolvedBy, resolution string) (*escalation.Escalation, error) {
	return q.transition(ctx, id, escalation.StatusResolved, resolvedBy, resolution)
}

// Dismiss closes an escalation without action.
func (q *EscalationQueue) Dismiss(ctx context.Context, id string) (*escalation.Escalation, error) {
	return q.transition(ctx, id, escalation.StatusDismissed, "", "")
}

// Counts returns per-status escalation counts, served from the count cache
// when fresh.
func (q *EscalationQueue) Counts(ctx context.Context) (map[escalation.Status]int, error) {
	key := q.countsKey()
	if q.cache != nil {
		if data, ok, err := q.cache.Get(ctx, key); err == nil && ok {
			var counts map[escalation.Status]int
			if err := json.Unmarshal(data, &counts); err == nil {
				return counts, nil
			}
		}
	}

	counts, err := q.store.CountEscalations(ctx, q.projectID)
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		if data, err := json.Marshal(counts); err == nil {
			_ = q.cache.Set(ctx, key, data, countsTTL)
		}
	}
	return counts, nil
}

func (q *EscalationQueue) transition(ctx context.Context, id string, to escalation.Status, resolvedBy, resolution string) (*escalation.Escalation, error) {
	esc, err := q.store.GetEscalation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !escalation.CanTransition(esc.Status, to) {
		return nil, fmt.Errorf("%w: escalation %s cannot move from %s to %s", domain.ErrValidation, id, esc.Status, to)
	}

	esc.Status = to
	if to == escalation.StatusResolved {
		esc.ResolvedBy = resolvedBy
		esc.ResolvedAt = q.now()
		esc.Resolution = resolution
	}

	if err := q.store.UpdateEscalation(ctx, esc); err != nil {
		return nil, fmt.Errorf("update escalation: %w", err)
	}
	q.invalidateCounts(ctx)

	if q.hub != nil {
		q.hub.BroadcastEvent(ctx, ws.EventEscalationUpdated, ws.EscalationEvent{
			EscalationID: esc.ID,
			ProjectID:    esc.ProjectID,
			Priority:     string(esc.Priority),
			Type:         string(esc.Type),
			Title:        esc.Title,
			AgentID:      esc.AgentID,
			Status:       string(esc.Status),
		})
	}

	q.mu.Lock()
	listeners := append([]EscalationListener(nil), q.listeners...)
	q.mu.Unlock()
	for _, l := range listeners {
		l(esc)
	}
	return esc, nil
}

func (q *EscalationQueue) countsKey() string {
	return "escalations:counts:" + q.projectID
}

func (q *EscalationQueue) invalidateCounts(ctx context.Context) {
	if q.cache != nil {
		_ = q.cache.Delete(ctx, q.countsKey())
	}
}

// eventTaskID extracts a task id from the variants that carry one.
func eventTaskID(e detection.Event) string {
	if ev, ok := e.(detection.ContextExhaustion); ok {
		return ev.TaskID
	}
	return ""
}
