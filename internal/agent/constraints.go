package agent

import "context"

// ConstraintFunc is a safety-constraint predicate. It reports whether the
// proposed action is allowed; on deny it returns a human-readable reason.
// Predicates must be side-effect free: the denial path of Execute performs no
// partial work and records no attempt.
type ConstraintFunc func(ctx context.Context, action Action) (allowed bool, reason string)

// Constraint is a named precondition that can veto an action before it runs.
// A constraint is scoped to the action types it applies to; an empty AppliesTo
// set means agent-wide.
type Constraint struct {
	Name      string
	AppliesTo []ActionType
	Check     ConstraintFunc
}

func (c Constraint) appliesTo(t ActionType) bool {
	if len(c.AppliesTo) == 0 {
		return true
	}
	for _, at := range c.AppliesTo {
		if at == t {
			return true
		}
	}
	return false
}

// Denial reports which constraint vetoed an action and why.
type Denial struct {
	Constraint string
	Reason     string
}

// constraintEngine evaluates the agent's declared constraints in order.
type constraintEngine struct {
	constraints []Constraint
}

// evaluate runs every constraint applicable to the action's type, in
// declaration order. The first deny wins; nil means the action is approved.
// The gate is a pre-condition of execution, not a per-attempt check: retries
// inside the controller do not re-enter here.
func (e *constraintEngine) evaluate(ctx context.Context, action Action) *Denial {
	for _, c := range e.constraints {
		if !c.appliesTo(action.Type) {
			continue
		}
		if allowed, reason := c.Check(ctx, action); !allowed {
			return &Denial{Constraint: c.Name, Reason: reason}
		}
	}
	return nil
}
