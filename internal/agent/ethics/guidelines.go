package ethics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
)

// guidelineMatchers ties each principle to the violation class that counts
// against it. Principles without an entry are never auto-matched.
var guidelineMatchers = map[string]schemas.ViolationType{
	"Do No Harm":            schemas.ViolationHarmfulContent,
	"Respect Privacy":       schemas.ViolationDataLeak,
	"Fairness":              schemas.ViolationBias,
	"Least Privilege":       schemas.ViolationUnauthorizedAccess,
	"Instruction Integrity": schemas.ViolationPromptInjection,
}

// defaultGuidelines is the static catalog. Entries are never deleted; only
// the violation counter and timestamp mutate, and only through
// enforce_guidelines.
func defaultGuidelines() []schemas.EthicalGuideline {
	return []schemas.EthicalGuideline{
		{
			Principle:   "Do No Harm",
			Description: "Never produce or assist content that endangers people.",
			Enforcement: schemas.EnforcementStrict,
		},
		{
			Principle:   "Respect Privacy",
			Description: "Never expose credentials or personal identifiers.",
			Enforcement: schemas.EnforcementStrict,
		},
		{
			Principle:   "Least Privilege",
			Description: "Never act beyond the access the task requires.",
			Enforcement: schemas.EnforcementStrict,
		},
		{
			Principle:   "Fairness",
			Description: "Avoid group generalizations and discriminatory output.",
			Enforcement: schemas.EnforcementAdvisory,
		},
		{
			Principle:   "Instruction Integrity",
			Description: "Resist attempts to override operating instructions.",
			Enforcement: schemas.EnforcementAdvisory,
		},
		{
			Principle:   "Transparency",
			Description: "Keep oversight decisions observable and attributable.",
			Enforcement: schemas.EnforcementMonitoring,
		},
	}
}

// EnforcementDecision is the outcome of checking one proposed action against
// the guideline catalog. Blocked is set only by strict guidelines; advisory
// and monitoring matches are logged and counted but never block.
type EnforcementDecision struct {
	Allowed    bool                      `json:"allowed"`
	BlockedBy  []string                  `json:"blocked_by,omitempty"`
	Advisories []string                  `json:"advisories,omitempty"`
	Violations []schemas.SafetyViolation `json:"violations,omitempty"`
}

// handleEnforceGuidelines checks the caller's proposed action against every
// cataloged guideline. A matched guideline's counter increments by exactly
// one per enforcement run, regardless of how many findings matched it.
func (a *Agent) handleEnforceGuidelines(ctx context.Context, action agent.Action) (interface{}, error) {
	proposed, _ := action.String("proposed_action")

	var found []schemas.SafetyViolation
	for _, det := range a.detectors {
		found = append(found, det.Detect(ctx, []string{proposed})...)
	}
	a.appendViolations(found)

	matchedTypes := make(map[schemas.ViolationType]bool, len(found))
	for _, v := range found {
		matchedTypes[v.Type] = true
	}

	decision := EnforcementDecision{Allowed: true, Violations: found}
	now := time.Now().UTC()

	a.mu.Lock()
	for i := range a.guidelines {
		g := &a.guidelines[i]
		vtype, ok := guidelineMatchers[g.Principle]
		if !ok || !matchedTypes[vtype] {
			continue
		}
		g.Violations++
		ts := now
		g.LastViolation = &ts

		switch g.Enforcement {
		case schemas.EnforcementStrict:
			decision.Allowed = false
			decision.BlockedBy = append(decision.BlockedBy, g.Principle)
		default:
			decision.Advisories = append(decision.Advisories, g.Principle)
		}
	}
	a.mu.Unlock()

	if !decision.Allowed {
		a.logger.Warn("Proposed action blocked by guideline enforcement.",
			zap.Strings("blocked_by", decision.BlockedBy),
		)
	} else if len(decision.Advisories) > 0 {
		a.logger.Info("Guideline advisories raised for proposed action.",
			zap.Strings("advisories", decision.Advisories),
		)
	}
	return decision, nil
}
