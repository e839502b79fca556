package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)
	r.Get("/ws", h.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Manual detection event injection
		r.Post("/events", h.InjectEvent)

		// Escalations
		r.Get("/escalations", h.ListEscalations)
		r.Get("/escalations/pending", h.PendingEscalations)
		r.Get("/escalations/counts", h.EscalationCounts)
		r.Get("/escalations/{id}", h.GetEscalation)
		r.Post("/escalations/{id}/acknowledge", h.AcknowledgeEscalation)
		r.Post("/escalations/{id}/resolve", h.ResolveEscalation)
		r.Post("/escalations/{id}/dismiss", h.DismissEscalation)

		// Action audit log
		r.Get("/actions", h.ListActions)
		r.Get("/actions/{id}", h.GetAction)
		r.Post("/actions/{id}/override", h.OverrideAction)

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}/actions", h.ListAgentActions)
		r.Post("/agents/{id}/reset", h.ResetAgentState)

		// Metrics and policy
		r.Get("/metrics/stats", h.MetricsStats)
		r.Get("/metrics/suggestions", h.ThresholdSuggestions)
		r.Get("/policy/thresholds", h.GetThresholds)
	})
}
