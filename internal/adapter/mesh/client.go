// Package mesh implements the control-plane port over core NATS
// request/reply. The fleet coordinator listens on the mesh.* subjects and
// acknowledges every request, so each call here is a round trip guarded by a
// circuit breaker.
package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shepd/shepherd/internal/port/controlplane"
	"github.com/shepd/shepherd/internal/resilience"
)

// Subjects the fleet coordinator serves.
const (
	subjectHeartbeat      = "mesh.agent.heartbeat"
	subjectAgentList      = "mesh.agent.list"
	subjectTaskUpdate     = "mesh.task.update"
	subjectFileUnlock     = "mesh.file.unlock"
	subjectCheckpointSave = "mesh.checkpoint.save"
	subjectSandboxRestart = "mesh.sandbox.restart"
)

const requestTimeout = 5 * time.Second

// ack is the generic reply envelope for mutating calls.
type ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type heartbeatRequest struct {
	AgentID string                   `json:"agent_id"`
	Status  controlplane.AgentStatus `json:"status"`
}

type taskUpdateRequest struct {
	TaskID string                  `json:"task_id"`
	Update controlplane.TaskUpdate `json:"update"`
}

type fileUnlockRequest struct {
	FilePath string `json:"file_path"`
	AgentID  string `json:"agent_id"`
}

type checkpointRequest struct {
	AgentID    string `json:"agent_id"`
	TaskID     string `json:"task_id,omitempty"`
	Stage      string `json:"stage"`
	TokenCount int    `json:"token_count"`
}

type restartRequest struct {
	AgentID string `json:"agent_id"`
}

// Client implements controlplane.Client and controlplane.SandboxRestarter
// against the mesh coordinator.
type Client struct {
	nc      *nats.Conn
	breaker *resilience.Breaker
}

// New creates a mesh client on an established NATS connection.
func New(nc *nats.Conn, breaker *resilience.Breaker) *Client {
	return &Client{nc: nc, breaker: breaker}
}

// SendHeartbeat reports an agent status on the agent's behalf.
func (c *Client) SendHeartbeat(ctx context.Context, agentID string, status controlplane.AgentStatus) error {
	return c.call(ctx, subjectHeartbeat, heartbeatRequest{AgentID: agentID, Status: status}, nil)
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, update controlplane.TaskUpdate) error {
	return c.call(ctx, subjectTaskUpdate, taskUpdateRequest{TaskID: taskID, Update: update}, nil)
}

// UnlockFile releases a distributed file lock held by an agent.
func (c *Client) UnlockFile(ctx context.Context, filePath, agentID string) error {
	return c.call(ctx, subjectFileUnlock, fileUnlockRequest{FilePath: filePath, AgentID: agentID}, nil)
}

// ListAgents returns the current fleet.
func (c *Client) ListAgents(ctx context.Context) ([]controlplane.Agent, error) {
	var agents []controlplane.Agent
	if err := c.call(ctx, subjectAgentList, struct{}{}, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// SaveCheckpoint persists a resumable checkpoint for an agent.
func (c *Client) SaveCheckpoint(ctx context.Context, agentID, taskID, stage string, tokenCount int) error {
	return c.call(ctx, subjectCheckpointSave, checkpointRequest{
		AgentID:    agentID,
		TaskID:     taskID,
		Stage:      stage,
		TokenCount: tokenCount,
	}, nil)
}

// RestartSandbox asks the coordinator to restart an agent's sandbox.
func (c *Client) RestartSandbox(ctx context.Context, agentID string) error {
	return c.call(ctx, subjectSandboxRestart, restartRequest{AgentID: agentID}, nil)
}

// call performs one request/reply round trip through the breaker. When out
// is nil the reply is decoded as an ack envelope and its error surfaced;
// otherwise the reply body is decoded into out.
func (c *Client) call(ctx context.Context, subject string, req, out any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", subject, err)
	}

	return c.breaker.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		msg, err := c.nc.RequestWithContext(reqCtx, subject, data)
		if err != nil {
			return fmt.Errorf("mesh request %s: %w", subject, err)
		}

		if out != nil {
			if err := json.Unmarshal(msg.Data, out); err != nil {
				return fmt.Errorf("decode %s reply: %w", subject, err)
			}
			return nil
		}

		var a ack
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			return fmt.Errorf("decode %s reply: %w", subject, err)
		}
		if !a.OK {
			return fmt.Errorf("mesh %s rejected: %s", subject, a.Error)
		}
		return nil
	})
}
