package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
)

// Base is the shared execution core every concrete agent composes. It owns
// the capability table, the safety-constraint gate and the retry controller,
// and exposes Execute as the single public entry point.
//
// Execution contract, in order:
//  1. The action type must be a declared capability; otherwise the action is
//     rejected immediately and nothing else happens.
//  2. Every declared constraint applicable to the action type is evaluated.
//     Any deny aborts the invocation with a denial result. This path is
//     side-effect free: no work, no learning record.
//  3. The registered handler runs under the retry controller, up to
//     MaxRetries+1 attempts. The gate is not re-evaluated per attempt.
//  4. The outcome is returned as a typed Result and appended to the learning
//     store (best effort).
type Base struct {
	cfg      Config
	logger   *zap.Logger
	gate     *constraintEngine
	retry    *retryController
	recorder Recorder
	handlers map[ActionType]Handler

	// mu serializes Execute calls on one instance; the in-memory history
	// buffers of concrete agents rely on this single-writer discipline.
	mu sync.Mutex
}

// NewBase validates the configuration and builds the execution core.
// Handlers are registered afterwards via Register, one per capability.
func NewBase(cfg Config, logger *zap.Logger, recorder Recorder) (*Base, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent config: name is required")
	}
	if len(cfg.Capabilities) == 0 {
		return nil, fmt.Errorf("agent %s: at least one capability is required", cfg.Name)
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		return nil, fmt.Errorf("agent %s: learning rate %v outside (0,1]", cfg.Name, cfg.LearningRate)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("agent %s: negative max retries", cfg.Name)
	}
	for _, c := range cfg.Constraints {
		if c.Check == nil {
			return nil, fmt.Errorf("agent %s: constraint %q has no predicate", cfg.Name, c.Name)
		}
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}

	return &Base{
		cfg:    cfg,
		logger: logger.Named(cfg.Name),
		gate:   &constraintEngine{constraints: cfg.Constraints},
		retry: &retryController{
			maxRetries: cfg.MaxRetries,
			delay:      cfg.RetryDelay,
			timeout:    cfg.ActionTimeout,
			logger:     logger.Named(cfg.Name),
		},
		recorder: recorder,
		handlers: make(map[ActionType]Handler),
	}, nil
}

// Register binds a handler to a declared capability. Binding an undeclared
// action type or re-binding a capability is a programmer error.
func (b *Base) Register(t ActionType, h Handler) error {
	if !b.cfg.hasCapability(t) {
		return fmt.Errorf("agent %s: handler for %q is not a declared capability", b.cfg.Name, t)
	}
	if _, dup := b.handlers[t]; dup {
		return fmt.Errorf("agent %s: duplicate handler for %q", b.cfg.Name, t)
	}
	if h == nil {
		return fmt.Errorf("agent %s: nil handler for %q", b.cfg.Name, t)
	}
	b.handlers[t] = h
	return nil
}

// MustRegister is Register for wiring done at construction time, where a
// failure is a startup bug.
func (b *Base) MustRegister(t ActionType, h Handler) {
	if err := b.Register(t, h); err != nil {
		panic(err)
	}
}

// Name returns the agent's configured name.
func (b *Base) Name() string { return b.cfg.Name }

// Config returns a copy of the agent's immutable configuration.
func (b *Base) Config() Config { return b.cfg }

// Execute runs one action through the gated execution loop and returns its
// typed result. Expected failures (denial, execution failure, validation
// failure) never surface as panics or errors; callers branch on Result.Status.
func (b *Base) Execute(ctx context.Context, action Action) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	started := time.Now().UTC()
	logger := b.logger.With(
		zap.String("action_id", action.ID),
		zap.String("action_type", string(action.Type)),
	)

	res := Result{
		ActionID:   action.ID,
		ActionType: action.Type,
		Agent:      b.cfg.Name,
		StartedAt:  started,
	}

	// 1. Capability gate.
	handler, ok := b.handlers[action.Type]
	if !ok {
		res.Status = StatusRejected
		res.ErrorCode = ErrCodeCapabilityNotDeclared
		res.Error = fmt.Sprintf("action type %q is not a declared capability of agent %s", action.Type, b.cfg.Name)
		res.FinishedAt = time.Now().UTC()
		logger.Error("Action rejected: capability not declared.")
		return res
	}

	// 2. Safety gate. Denials are side-effect free and never recorded.
	if denial := b.gate.evaluate(ctx, action); denial != nil {
		res.Status = StatusDenied
		res.ErrorCode = ErrCodeSafetyDenied
		res.DeniedBy = denial.Constraint
		res.Error = denial.Reason
		res.FinishedAt = time.Now().UTC()
		logger.Warn("Action denied by safety constraint.",
			zap.String("constraint", denial.Constraint),
			zap.String("reason", denial.Reason),
		)
		return res
	}

	// 3. Gated work, under the retry controller.
	detail, attempts, err := b.retry.do(ctx, string(action.Type), func(ctx context.Context) (interface{}, error) {
		return handler(ctx, action)
	})
	res.Detail = detail
	res.Attempts = attempts
	res.FinishedAt = time.Now().UTC()

	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		if ctx.Err() != nil {
			res.ErrorCode = ErrCodeCancelled
		} else {
			res.ErrorCode = codeForError(err)
		}
		logger.Warn("Action failed.",
			zap.Int("attempts", attempts),
			zap.String("error_code", string(res.ErrorCode)),
			zap.Error(err),
		)
	} else {
		res.Status = StatusSuccess
		logger.Info("Action completed.", zap.Int("attempts", attempts))
	}

	// 4. Learning feedback, best effort. Attempted actions only; denials and
	// rejections never reach this point with work done, so they are not
	// recorded as attempts.
	b.record(ctx, res)

	return res
}

func (b *Base) record(ctx context.Context, res Result) {
	rec := schemas.LearningRecord{
		ID:       uuid.New().String(),
		Agent:    b.cfg.Name,
		Category: "action_outcome",
		Payload: map[string]interface{}{
			"action_id":     res.ActionID,
			"action_type":   string(res.ActionType),
			"status":        string(res.Status),
			"error_code":    string(res.ErrorCode),
			"attempts":      res.Attempts,
			"duration_ms":   res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
			"learning_rate": b.cfg.LearningRate,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := b.recorder.Record(ctx, rec); err != nil && ctx.Err() == nil {
		// Persistence is fire-and-forget; a store outage must never fail
		// the action that produced the record.
		b.logger.Warn("Failed to persist learning record.", zap.Error(err))
	}
}
