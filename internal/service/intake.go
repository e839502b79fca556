package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shepd/shepherd/internal/domain/decision"
	"github.com/shepd/shepherd/internal/domain/detection"
	"github.com/shepd/shepherd/internal/port/messagequeue"
)

// Intake consumes detection events from the message queue and drives them
// through the decision engine: autonomous decisions are executed and their
// outcomes fed back into the metrics ledger, escalations are queued for a
// human.
type Intake struct {
	queue       messagequeue.Queue
	engine      *DecisionEngine
	executor    *ActionExecutor
	escalations *EscalationQueue
}

// NewIntake wires the detection consumer.
func NewIntake(q messagequeue.Queue, engine *DecisionEngine, exec *ActionExecutor, esc *EscalationQueue) *Intake {
	return &Intake{queue: q, engine: engine, executor: exec, escalations: esc}
}

// Start subscribes to the detection subject. The returned function cancels
// the subscription.
func (i *Intake) Start(ctx context.Context) (func(), error) {
	cancel, err := i.queue.Subscribe(ctx, messagequeue.SubjectDetectionEvent, i.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectDetectionEvent, err)
	}
	slog.Info("detection intake started", "subject", messagequeue.SubjectDetectionEvent)
	return cancel, nil
}

func (i *Intake) handle(ctx context.Context, subject string, data []byte) error {
	ev, err := detection.Unmarshal(data)
	if err != nil {
		slog.Warn("dropping malformed detection event", "subject", subject, "error", err)
		return err
	}
	_, err = i.Process(ctx, ev)
	return err
}

// Process runs one detection event through the engine and returns the
// decision that was made. The supervisory API uses it for manually injected
// events.
func (i *Intake) Process(ctx context.Context, ev detection.Event) (decision.Decision, error) {
	d, metricID := i.engine.ProcessEvent(ctx, ev)

	if d.IsEscalation() {
		_, err := i.escalations.CreateEscalation(ctx, ev, d, consoleOutput(ev), nil)
		return d, err
	}

	a := BuildAction(ev, d)
	res, err := i.executor.Execute(ctx, a, ev)
	if err != nil {
		return d, err
	}
	i.engine.RecordOutcome(metricID, res.Success, res.Error)
	return d, nil
}

// consoleOutput extracts whatever raw agent output the event carries so the
// escalation shows it to the reviewer.
func consoleOutput(e detection.Event) string {
	switch ev := e.(type) {
	case detection.TestFailure:
		return ev.Output
	case detection.BuildFailure:
		return ev.Output
	case detection.Error:
		return ev.Message
	default:
		return ""
	}
}
