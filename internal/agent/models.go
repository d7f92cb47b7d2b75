package agent

import (
	"time"

	"github.com/google/uuid"
)

// ActionType is the tag an action is dispatched on. Each concrete agent
// defines its own closed vocabulary of ActionType constants and registers a
// handler per constant, so an action type without a handler is rejected at
// construction time rather than silently ignored at dispatch time.
type ActionType string

// Action is a single, transient unit of work submitted to an agent for gated
// execution. Only its outcome is persisted, never the action itself.
type Action struct {
	ID        string                 `json:"id"`
	Type      ActionType             `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewAction builds an action with a fresh ID and timestamp.
func NewAction(t ActionType, payload map[string]interface{}) Action {
	return Action{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// String reads a string payload parameter, with ok reporting presence.
func (a Action) String(key string) (string, bool) {
	v, ok := a.Payload[key].(string)
	return v, ok
}

// Status classifies the outcome of one Execute call.
type Status string

const (
	// StatusSuccess: the handler ran and reported success.
	StatusSuccess Status = "SUCCESS"
	// StatusFailed: the handler was attempted and failed, including
	// post-hoc validation failures; the retry budget is exhausted.
	StatusFailed Status = "FAILED"
	// StatusDenied: a safety constraint vetoed the action before any work
	// happened. Not a bug and never retried.
	StatusDenied Status = "DENIED"
	// StatusRejected: the action type is not a declared capability of the
	// agent. A programmer error, surfaced immediately.
	StatusRejected Status = "REJECTED"
)

// Result is the typed outcome of one Execute call. Expected failure paths are
// represented here rather than as errors, so callers branch on Status without
// exception-style handling.
type Result struct {
	ActionID   string      `json:"action_id"`
	ActionType ActionType  `json:"action_type"`
	Agent      string      `json:"agent"`
	Status     Status      `json:"status"`
	Detail     interface{} `json:"detail,omitempty"`
	ErrorCode  ErrorCode   `json:"error_code,omitempty"`
	Error      string      `json:"error,omitempty"`
	// DeniedBy names the constraint that vetoed a DENIED action.
	DeniedBy   string    `json:"denied_by,omitempty"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// OK reports whether the action completed successfully.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Config is the immutable declaration an agent is constructed with.
type Config struct {
	// Name identifies the agent in logs and learning records.
	Name string
	// Capabilities lists the action types the agent is willing to accept.
	// Every registered handler's type must appear here.
	Capabilities []ActionType
	// Constraints are evaluated in order before any action runs. Each
	// constraint is scoped to the action types it applies to.
	Constraints []Constraint
	// LearningRate weights how strongly outcomes influence downstream
	// learning, in (0,1].
	LearningRate float64
	// MaxRetries is the number of additional attempts after the first
	// failure. Zero means a single attempt.
	MaxRetries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// ActionTimeout bounds a single attempt. Zero disables the bound.
	ActionTimeout time.Duration
}

func (c Config) hasCapability(t ActionType) bool {
	for _, cap := range c.Capabilities {
		if cap == t {
			return true
		}
	}
	return false
}
