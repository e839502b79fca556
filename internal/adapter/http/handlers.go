package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/shepd/shepherd/internal/adapter/ws"
	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/detection"
	"github.com/shepd/shepherd/internal/domain/escalation"
	"github.com/shepd/shepherd/internal/port/controlplane"
	"github.com/shepd/shepherd/internal/port/messagequeue"
	"github.com/shepd/shepherd/internal/port/store"
	"github.com/shepd/shepherd/internal/service"
)

// Handlers bundles the service dependencies behind the supervisory API.
type Handlers struct {
	engine      *service.DecisionEngine
	escalations *service.EscalationQueue
	intake      *service.Intake
	actions     store.ActionLogger
	cp          controlplane.Client
	queue       messagequeue.Queue
	hub         *ws.Hub
	projectID   string
}

// NewHandlers wires the API handlers.
func NewHandlers(
	engine *service.DecisionEngine,
	escalations *service.EscalationQueue,
	intake *service.Intake,
	actions store.ActionLogger,
	cp controlplane.Client,
	queue messagequeue.Queue,
	hub *ws.Hub,
	projectID string,
) *Handlers {
	return &Handlers{
		engine:      engine,
		escalations: escalations,
		intake:      intake,
		actions:     actions,
		cp:          cp,
		queue:       queue,
		hub:         hub,
		projectID:   projectID,
	}
}

// Health reports process liveness and queue connectivity.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	type health struct {
		Status        string `json:"status"`
		NATSConnected bool   `json:"nats_connected"`
	}
	writeJSON(w, http.StatusOK, health{
		Status:        "ok",
		NATSConnected: h.queue != nil && h.queue.IsConnected(),
	})
}

// --- Escalations ---

// ListEscalations returns the project's escalations, optionally filtered by
// a comma-separated status query parameter.
func (h *Handlers) ListEscalations(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		list, err := h.escalations.All(r.Context())
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(list))
		return
	}

	var statuses []escalation.Status
	for _, s := range strings.Split(raw, ",") {
		st := escalation.Status(strings.TrimSpace(s))
		switch st {
		case escalation.StatusPending, escalation.StatusAcknowledged,
			escalation.StatusResolved, escalation.StatusDismissed:
			statuses = append(statuses, st)
		default:
			writeError(w, http.StatusBadRequest, "unknown status "+string(st))
			return
		}
	}

	list, err := h.escalations.ByStatus(r.Context(), statuses...)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

// PendingEscalations returns escalations awaiting human attention.
func (h *Handlers) PendingEscalations(w http.ResponseWriter, r *http.Request) {
	list, err := h.escalations.Pending(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

// EscalationCounts returns per-status escalation counts.
func (h *Handlers) EscalationCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.escalations.Counts(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// GetEscalation returns one escalation by id.
func (h *Handlers) GetEscalation(w http.ResponseWriter, r *http.Request) {
	esc, err := h.escalations.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

// AcknowledgeEscalation marks a pending escalation as being worked on.
func (h *Handlers) AcknowledgeEscalation(w http.ResponseWriter, r *http.Request) {
	esc, err := h.escalations.Acknowledge(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

// ResolveEscalation closes an escalation with the resolver's identity.
func (h *Handlers) ResolveEscalation(w http.ResponseWriter, r *http.Request) {
	type resolveRequest struct {
		Resolver   string `json:"resolved_by"`
		Resolution string `json:"resolution"`
	}
	req, ok := readJSON[resolveRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Resolver, "resolved_by") {
		return
	}

	esc, err := h.escalations.Resolve(r.Context(), urlParam(r, "id"), req.Resolver, req.Resolution)
	if err != nil {
		writeDomainError(w, err, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

// DismissEscalation closes an escalation without action.
func (h *Handlers) DismissEscalation(w http.ResponseWriter, r *http.Request) {
	esc, err := h.escalations.Dismiss(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

// --- Action audit log ---

// ListActions returns the project's action audit rows, optionally filtered
// by outcome.
func (h *Handlers) ListActions(w http.ResponseWriter, r *http.Request) {
	outcome := action.Outcome(r.URL.Query().Get("outcome"))
	switch outcome {
	case "", action.OutcomePending, action.OutcomeSuccess, action.OutcomeFailure, action.OutcomeOverridden:
	default:
		writeError(w, http.StatusBadRequest, "unknown outcome "+string(outcome))
		return
	}

	list, err := h.actions.ListActionsByProject(r.Context(), h.projectID, outcome)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

// GetAction returns one audit row by id.
func (h *Handlers) GetAction(w http.ResponseWriter, r *http.Request) {
	l, err := h.actions.GetActionLog(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// OverrideAction records a human countermanding an autonomous action.
func (h *Handlers) OverrideAction(w http.ResponseWriter, r *http.Request) {
	type overrideRequest struct {
		OverriddenBy   string `json:"overridden_by"`
		OverrideAction string `json:"override_action"`
		Reason         string `json:"reason"`
		MetricID       string `json:"metric_id"`
	}
	req, ok := readJSON[overrideRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.OverriddenBy, "overridden_by") {
		return
	}
	if !requireField(w, req.OverrideAction, "override_action") {
		return
	}

	id := urlParam(r, "id")
	err := h.actions.RecordActionOverride(r.Context(), id, action.HumanOverride{
		OverriddenBy:   req.OverriddenBy,
		OverrideAction: req.OverrideAction,
		Reason:         req.Reason,
	})
	if err != nil {
		writeDomainError(w, err, "action not found")
		return
	}
	if req.MetricID != "" {
		h.engine.RecordOverride(req.MetricID, req.OverriddenBy, req.OverrideAction, req.Reason)
	}

	l, err := h.actions.GetActionLog(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// ListAgentActions returns the audit rows attributed to one agent.
func (h *Handlers) ListAgentActions(w http.ResponseWriter, r *http.Request) {
	list, err := h.actions.ListActionsByAgent(r.Context(), h.projectID, urlParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

// --- Metrics and policy ---

// MetricsStats returns per-event-type decision statistics.
func (h *Handlers) MetricsStats(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("event_type")
	if !requireField(w, eventType, "event_type") {
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Stats(detection.Kind(eventType)))
}

// ThresholdSuggestions returns data-driven threshold tuning suggestions.
func (h *Handlers) ThresholdSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(h.engine.ThresholdSuggestions()))
}

// GetThresholds returns the effective policy thresholds.
func (h *Handlers) GetThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Thresholds())
}

// --- Events and agents ---

// InjectEvent feeds a detection event envelope through the engine, exactly
// as if it had arrived from the queue. Returns the decision that was made.
func (h *Handlers) InjectEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	ev, err := detection.Unmarshal(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.intake.Process(r.Context(), ev)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}

// ListAgents returns the current fleet from the control plane.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.cp.ListAgents(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(agents))
}

// ResetAgentState clears the engine's per-agent counters, typically after a
// manual intervention.
func (h *Handlers) ResetAgentState(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetAgentState(urlParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleWS upgrades to a WebSocket and streams supervision events.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r)
}

// orEmpty ensures JSON list responses encode as [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
