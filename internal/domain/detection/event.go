// Package detection defines the detection event sum type: one variant per
// kind of anomaly observed in a supervised agent.
package detection

import "time"

// Kind identifies the variant of a detection event.
type Kind string

const (
	KindStuck             Kind = "stuck"
	KindError             Kind = "error"
	KindAuthRequired      Kind = "auth_required"
	KindTestFailure       Kind = "test_failure"
	KindBuildFailure      Kind = "build_failure"
	KindRateLimited       Kind = "rate_limited"
	KindGitConflict       Kind = "git_conflict"
	KindCrash             Kind = "crash"
	KindHeartbeatTimeout  Kind = "heartbeat_timeout"
	KindContextExhaustion Kind = "context_exhaustion"
)

// Severity classifies an error event.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// Base carries the fields common to every detection event.
type Base struct {
	AgentID   string    `json:"agent_id"`
	SandboxID string    `json:"sandbox_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Common returns the shared event fields.
func (b Base) Common() Base { return b }

// Event is the sealed detection event interface. The only implementations
// are the variant structs in this package; consumers dispatch with a type
// switch and treat an unknown variant as an invariant violation.
type Event interface {
	Kind() Kind
	Common() Base
}

// Stuck reports an agent that has produced no output for a while.
type Stuck struct {
	Base
	SilentDurationMs int64 `json:"silent_duration_ms"`
}

func (Stuck) Kind() Kind { return KindStuck }

// Error reports an error surfaced in the agent's console.
type Error struct {
	Base
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (Error) Kind() Kind { return KindError }

// AuthRequired reports an agent blocked on an interactive auth flow.
type AuthRequired struct {
	Base
	Provider string `json:"provider"`
	AuthURL  string `json:"auth_url,omitempty"`
}

func (AuthRequired) Kind() Kind { return KindAuthRequired }

// TestFailure reports failing tests in the agent's working tree.
type TestFailure struct {
	Base
	FailedTests []string `json:"failed_tests"`
	TotalTests  int      `json:"total_tests,omitempty"`
	Output      string   `json:"output"`
}

func (TestFailure) Kind() Kind { return KindTestFailure }

// BuildFailure reports a failed build.
type BuildFailure struct {
	Base
	Output string `json:"output"`
}

func (BuildFailure) Kind() Kind { return KindBuildFailure }

// RateLimited reports a provider rate limit hit by the agent.
type RateLimited struct {
	Base
	Provider     string `json:"provider"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

func (RateLimited) Kind() Kind { return KindRateLimited }

// GitConflict reports merge conflicts in the agent's workspace.
type GitConflict struct {
	Base
	Files []string `json:"files"`
}

func (GitConflict) Kind() Kind { return KindGitConflict }

// Crash reports an agent process exit.
type Crash struct {
	Base
	ExitCode int    `json:"exit_code"`
	Signal   string `json:"signal,omitempty"`
}

func (Crash) Kind() Kind { return KindCrash }

// HeartbeatTimeout reports an agent that stopped heartbeating.
type HeartbeatTimeout struct {
	Base
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

func (HeartbeatTimeout) Kind() Kind { return KindHeartbeatTimeout }

// ContextExhaustion reports an agent approaching its context window limit.
type ContextExhaustion struct {
	Base
	TokenCount   int     `json:"token_count"`
	TokenLimit   int     `json:"token_limit"`
	UsagePercent float64 `json:"usage_percent"`
	TaskID       string  `json:"task_id,omitempty"`
}

func (ContextExhaustion) Kind() Kind { return KindContextExhaustion }
