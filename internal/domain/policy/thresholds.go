package policy

import "time"

// Thresholds are the immutable policy knobs consumed by the decision rules.
type Thresholds struct {
	Stuck       StuckThresholds       `yaml:"stuck" json:"stuck"`
	TaskFailure TaskFailureThresholds `yaml:"task_failure" json:"task_failure"`
	AgentCrash  AgentCrashThresholds  `yaml:"agent_crash" json:"agent_crash"`
	Heartbeat   HeartbeatThresholds   `yaml:"heartbeat" json:"heartbeat"`
	RateLimit   RateLimitThresholds   `yaml:"rate_limit" json:"rate_limit"`
}

// StuckThresholds controls handling of silent agents.
type StuckThresholds struct {
	PromptAfter           time.Duration `yaml:"prompt_after" json:"prompt_after"`
	EscalateAfterAttempts int           `yaml:"escalate_after_attempts" json:"escalate_after_attempts"`
}

// TaskFailureThresholds controls automatic task retries.
type TaskFailureThresholds struct {
	AutoRetryMax int `yaml:"auto_retry_max" json:"auto_retry_max"`
}

// AgentCrashThresholds controls automatic restarts after crashes.
type AgentCrashThresholds struct {
	AutoRestartMax int           `yaml:"auto_restart_max" json:"auto_restart_max"`
	Cooldown       time.Duration `yaml:"cooldown" json:"cooldown"`
}

// HeartbeatThresholds controls handling of heartbeat timeouts.
type HeartbeatThresholds struct {
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	PingBeforeRestart bool          `yaml:"ping_before_restart" json:"ping_before_restart"`
}

// RateLimitThresholds controls handling of provider rate limits.
type RateLimitThresholds struct {
	AutoBackoff bool          `yaml:"auto_backoff" json:"auto_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff" json:"max_backoff"`
}

// DefaultThresholds returns the stock policy knobs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Stuck: StuckThresholds{
			PromptAfter:           5 * time.Minute,
			EscalateAfterAttempts: 2,
		},
		TaskFailure: TaskFailureThresholds{
			AutoRetryMax: 3,
		},
		AgentCrash: AgentCrashThresholds{
			AutoRestartMax: 2,
			Cooldown:       time.Minute,
		},
		Heartbeat: HeartbeatThresholds{
			Timeout:           2 * time.Minute,
			PingBeforeRestart: true,
		},
		RateLimit: RateLimitThresholds{
			AutoBackoff: true,
			MaxBackoff:  5 * time.Minute,
		},
	}
}

// Overrides is a partial threshold specification. Nil fields keep the value
// they are merged over; set fields replace it. Merging is field by field
// within each category, so one knob can be tuned without restating the rest.
type Overrides struct {
	Stuck       *StuckOverrides       `yaml:"stuck,omitempty" json:"stuck,omitempty"`
	TaskFailure *TaskFailureOverrides `yaml:"task_failure,omitempty" json:"task_failure,omitempty"`
	AgentCrash  *AgentCrashOverrides  `yaml:"agent_crash,omitempty" json:"agent_crash,omitempty"`
	Heartbeat   *HeartbeatOverrides   `yaml:"heartbeat,omitempty" json:"heartbeat,omitempty"`
	RateLimit   *RateLimitOverrides   `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
}

// StuckOverrides partially overrides StuckThresholds.
type StuckOverrides struct {
	PromptAfter           *time.Duration `yaml:"prompt_after,omitempty" json:"prompt_after,omitempty"`
	EscalateAfterAttempts *int           `yaml:"escalate_after_attempts,omitempty" json:"escalate_after_attempts,omitempty"`
}

// TaskFailureOverrides partially overrides TaskFailureThresholds.
type TaskFailureOverrides struct {
	AutoRetryMax *int `yaml:"auto_retry_max,omitempty" json:"auto_retry_max,omitempty"`
}

// AgentCrashOverrides partially overrides AgentCrashThresholds.
type AgentCrashOverrides struct {
	AutoRestartMax *int           `yaml:"auto_restart_max,omitempty" json:"auto_restart_max,omitempty"`
	Cooldown       *time.Duration `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
}

// HeartbeatOverrides partially overrides HeartbeatThresholds.
type HeartbeatOverrides struct {
	Timeout           *time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	PingBeforeRestart *bool          `yaml:"ping_before_restart,omitempty" json:"ping_before_restart,omitempty"`
}

// RateLimitOverrides partially overrides RateLimitThresholds.
type RateLimitOverrides struct {
	AutoBackoff *bool          `yaml:"auto_backoff,omitempty" json:"auto_backoff,omitempty"`
	MaxBackoff  *time.Duration `yaml:"max_backoff,omitempty" json:"max_backoff,omitempty"`
}

// Merge returns t with every set override field applied.
func (t Thresholds) Merge(o Overrides) Thresholds {
	if o.Stuck != nil {
		if o.Stuck.PromptAfter != nil {
			t.Stuck.PromptAfter = *o.Stuck.PromptAfter
		}
		if o.Stuck.EscalateAfterAttempts != nil {
			t.Stuck.EscalateAfterAttempts = *o.Stuck.EscalateAfterAttempts
		}
	}
	if o.TaskFailure != nil {
		if o.TaskFailure.AutoRetryMax != nil {
			t.TaskFailure.AutoRetryMax = *o.TaskFailure.AutoRetryMax
		}
	}
	if o.AgentCrash != nil {
		if o.AgentCrash.AutoRestartMax != nil {
			t.AgentCrash.AutoRestartMax = *o.AgentCrash.AutoRestartMax
		}
		if o.AgentCrash.Cooldown != nil {
			t.AgentCrash.Cooldown = *o.AgentCrash.Cooldown
		}
	}
	if o.Heartbeat != nil {
		if o.Heartbeat.Timeout != nil {
			t.Heartbeat.Timeout = *o.Heartbeat.Timeout
		}
		if o.Heartbeat.PingBeforeRestart != nil {
			t.Heartbeat.PingBeforeRestart = *o.Heartbeat.PingBeforeRestart
		}
	}
	if o.RateLimit != nil {
		if o.RateLimit.AutoBackoff != nil {
			t.RateLimit.AutoBackoff = *o.RateLimit.AutoBackoff
		}
		if o.RateLimit.MaxBackoff != nil {
			t.RateLimit.MaxBackoff = *o.RateLimit.MaxBackoff
		}
	}
	return t
}
