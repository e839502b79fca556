package mesh

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shepd/shepherd/internal/port/controlplane"
	"github.com/shepd/shepherd/internal/resilience"
)

// testClient connects to NATS or skips the test if NATS_URL is not set.
func testClient(t *testing.T) (*Client, *nats.Conn) {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(nc.Close)

	breaker := resilience.NewBreaker("mesh-test", 3, time.Second)
	return New(nc, breaker), nc
}

func respond(t *testing.T, nc *nats.Conn, subject string, reply any) {
	t.Helper()

	data, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := msg.Respond(data); err != nil {
			t.Errorf("respond: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("subscribe %s: %v", subject, err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}

func TestClient_SendHeartbeat(t *testing.T) {
	c, nc := testClient(t)
	respond(t, nc, subjectHeartbeat, ack{OK: true})

	if err := c.SendHeartbeat(context.Background(), "agent-1", controlplane.AgentWorking); err != nil {
		t.Fatalf("SendHeartbeat: %v", err)
	}
}

func TestClient_RejectedAck(t *testing.T) {
	c, nc := testClient(t)
	respond(t, nc, subjectFileUnlock, ack{OK: false, Error: "lock not held"})

	err := c.UnlockFile(context.Background(), "src/main.go", "agent-1")
	if err == nil {
		t.Fatal("expected error for rejected ack")
	}
}

func TestClient_ListAgents(t *testing.T) {
	c, nc := testClient(t)
	want := []controlplane.Agent{
		{ID: "agent-1", SandboxID: "sb-1", Status: controlplane.AgentWorking, TaskID: "task-9"},
		{ID: "agent-2", SandboxID: "sb-2", Status: controlplane.AgentIdle},
	}
	respond(t, nc, subjectAgentList, want)

	got, err := c.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d agents, want %d", len(got), len(want))
	}
	if got[0].ID != "agent-1" || got[1].Status != controlplane.AgentIdle {
		t.Errorf("unexpected fleet: %+v", got)
	}
}
