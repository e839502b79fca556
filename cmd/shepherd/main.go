package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	shephttp "github.com/shepd/shepherd/internal/adapter/http"
	"github.com/shepd/shepherd/internal/adapter/mesh"
	shepnats "github.com/shepd/shepherd/internal/adapter/nats"
	shepotel "github.com/shepd/shepherd/internal/adapter/otel"
	"github.com/shepd/shepherd/internal/adapter/postgres"
	"github.com/shepd/shepherd/internal/adapter/ristretto"
	"github.com/shepd/shepherd/internal/adapter/ws"
	"github.com/shepd/shepherd/internal/config"
	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
	"github.com/shepd/shepherd/internal/domain/escalation"
	"github.com/shepd/shepherd/internal/domain/policy"
	"github.com/shepd/shepherd/internal/logger"
	"github.com/shepd/shepherd/internal/middleware"
	"github.com/shepd/shepherd/internal/port/controlplane"
	"github.com/shepd/shepherd/internal/port/messagequeue"
	"github.com/shepd/shepherd/internal/resilience"
	"github.com/shepd/shepherd/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"project_id", cfg.Observer.ProjectID,
		"autonomy", cfg.Observer.Autonomy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	otelShutdown, err := shepotel.Init(ctx, cfg.OTel.ServiceName, cfg.OTel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	instruments, err := shepotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	queue, err := shepnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	countCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer countCache.Close()

	// --- Control plane ---
	breaker := resilience.NewBreaker("mesh", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	meshClient := mesh.New(queue.Conn(), breaker)

	var restarter controlplane.SandboxRestarter
	if cfg.Observer.RestartEnabled {
		restarter = meshClient
	}

	// --- Services ---
	hub := ws.NewHub()
	st := postgres.NewStore(pool)

	engine := service.NewDecisionEngine(cfg.Observer.Thresholds, policy.AutonomyLevel(cfg.Observer.Autonomy))
	engine.SetMetrics(instruments)
	defer engine.Dispose()

	escalations := service.NewEscalationQueue(st, hub, countCache, cfg.Observer.ProjectID)
	escalations.SetMetrics(instruments)

	executor := service.NewActionExecutor(meshClient, restarter, st, cfg.Observer.ProjectID, cfg.Observer.ObserverID)
	executor.SetMetrics(instruments)
	defer executor.Dispose()

	intake := service.NewIntake(queue, engine, executor, escalations)

	wireEvents(ctx, queue, hub, engine, executor, escalations)

	cancelIntake, err := intake.Start(ctx)
	if err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	defer cancelIntake()

	// --- HTTP ---
	handlers := shephttp.NewHandlers(engine, escalations, intake, st, meshClient, queue, hub, cfg.Observer.ProjectID)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(shephttp.SecurityHeaders)
	r.Use(shephttp.CORS(cfg.Server.CORSOrigin))
	r.Use(shephttp.Logger)
	r.Use(shepotel.HTTPMiddleware(cfg.OTel.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	shephttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// wireEvents fans decisions, action results, and escalation lifecycle events
// out to WebSocket clients and the message queue.
func wireEvents(
	ctx context.Context,
	queue messagequeue.Queue,
	hub *ws.Hub,
	engine *service.DecisionEngine,
	executor *service.ActionExecutor,
	escalations *service.EscalationQueue,
) {
	engine.AddListener(func(e detection.Event, d decision.Decision) {
		hub.BroadcastEvent(ctx, ws.EventDecision, ws.DecisionEvent{
			EventType:  string(e.Kind()),
			AgentID:    e.Common().AgentID,
			Verdict:    string(d.Verdict),
			ActionType: string(d.ActionType),
			Priority:   string(d.Priority),
			Reason:     d.Reason,
		})
	})

	executor.AddListener(func(l *action.Log, res action.Result) {
		hub.BroadcastEvent(ctx, ws.EventActionResult, ws.ActionResultEvent{
			ActionType: string(l.Action.Type),
			AgentID:    l.Action.AgentID,
			TaskID:     l.Action.TaskID,
			Success:    res.Success,
			Error:      res.Error,
		})
		publishJSON(ctx, queue, messagequeue.SubjectActionResult, messagequeue.ActionResultPayload{
			ActionLogID:  l.ID,
			ProjectID:    l.ProjectID,
			ActionType:   string(l.Action.Type),
			AgentID:      l.Action.AgentID,
			Success:      res.Success,
			Error:        res.Error,
			TriggerEvent: l.TriggerEvent,
		})
	})

	escalations.AddListener(func(e *escalation.Escalation) {
		subject := messagequeue.SubjectEscalationCreated
		payload := any(messagequeue.EscalationCreatedPayload{
			EscalationID: e.ID,
			ProjectID:    e.ProjectID,
			Priority:     string(e.Priority),
			Type:         string(e.Type),
			Title:        e.Title,
			AgentID:      e.AgentID,
		})
		if e.Status != escalation.StatusPending {
			subject = messagequeue.SubjectEscalationUpdated
			payload = messagequeue.EscalationUpdatedPayload{
				EscalationID: e.ID,
				ProjectID:    e.ProjectID,
				Status:       string(e.Status),
				ResolvedBy:   e.ResolvedBy,
			}
		}
		publishJSON(ctx, queue, subject, payload)
	})
}

func publishJSON(ctx context.Context, queue messagequeue.Queue, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := queue.Publish(ctx, subject, data); err != nil {
		slog.Error("publish failed", "subject", subject, "error", err)
	}
}
