// Package ethics implements the safety/compliance oversight agent: live
// safety monitoring with immediate escalation, compliance checks, guideline
// enforcement, adversarial threat simulation, and hard-gated output
// validation.
package ethics

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
	"github.com/custodian-sh/custodian/internal/alerts"
	"github.com/custodian-sh/custodian/internal/config"
	"github.com/custodian-sh/custodian/internal/reports"
)

// AgentName identifies the agent in logs and learning records.
const AgentName = "ethics"

// The agent's closed action vocabulary.
const (
	ActionMonitorSafety   agent.ActionType = "monitor_safety"
	ActionCheckCompliance agent.ActionType = "check_compliance"
	ActionDetectBias      agent.ActionType = "detect_bias"
	ActionPreventHarm     agent.ActionType = "prevent_harm"
	ActionAuditBehavior   agent.ActionType = "audit_ai_behavior"
	ActionSimulateThreats agent.ActionType = "simulate_threats"
	ActionEnforceGuides   agent.ActionType = "enforce_guidelines"
	ActionGenerateReport  agent.ActionType = "generate_ethics_report"
	ActionValidateOutputs agent.ActionType = "validate_ai_outputs"
)

// Agent is the ethics/compliance agent.
type Agent struct {
	*agent.Base

	cfg    config.EthicsConfig
	logger *zap.Logger
	sink   alerts.Sink
	store  reports.Store

	detectors []Detector

	mu            sync.Mutex
	violations    []schemas.SafetyViolation
	compliance    map[schemas.ComplianceStandard]schemas.ComplianceCheck
	guidelines    []schemas.EthicalGuideline
	threatHistory []schemas.ThreatOutcome
	quarantine    []string
	historyLimit  int
}

// Option customizes agent construction.
type Option func(*Agent)

// WithDetectors replaces the default pattern detectors.
func WithDetectors(detectors ...Detector) Option {
	return func(a *Agent) { a.detectors = detectors }
}

// New builds the ethics agent. The sink receives critical-violation
// escalations; the store persists generated reports. Both are best effort.
func New(cfg config.EthicsConfig, logger *zap.Logger, recorder agent.Recorder, sink alerts.Sink, store reports.Store, opts ...Option) (*Agent, error) {
	a := &Agent{
		cfg:          cfg,
		logger:       logger.Named(AgentName),
		sink:         sink,
		store:        store,
		detectors:    defaultDetectors(),
		compliance:   make(map[schemas.ComplianceStandard]schemas.ComplianceCheck),
		guidelines:   defaultGuidelines(),
		historyLimit: cfg.Runtime.HistorySize,
	}
	if a.historyLimit <= 0 {
		a.historyLimit = 100
	}
	for _, opt := range opts {
		opt(a)
	}

	capabilities := []agent.ActionType{
		ActionMonitorSafety,
		ActionCheckCompliance,
		ActionDetectBias,
		ActionPreventHarm,
		ActionAuditBehavior,
		ActionSimulateThreats,
		ActionEnforceGuides,
		ActionGenerateReport,
		ActionValidateOutputs,
	}

	// The constraints gate this agent's own actions, not the outputs it
	// analyzes. Each predicate vetoes a request explicitly marked as
	// crossing the named policy line.
	constraints := []agent.Constraint{
		{
			Name:      "no_harmful_content_generation",
			AppliesTo: []agent.ActionType{ActionSimulateThreats, ActionValidateOutputs},
			Check:     denyFlag("generate_live_content", "simulated attacks must not emit live content"),
		},
		{
			Name:      "no_unauthorized_data_access",
			AppliesTo: []agent.ActionType{ActionMonitorSafety, ActionAuditBehavior},
			Check:     denyFlag("bypass_access_controls", "monitoring must honor access controls"),
		},
		{
			Name:      "no_bias_amplification",
			AppliesTo: []agent.ActionType{ActionSimulateThreats},
			Check:     denyFlag("amplify_bias", "bias scenarios run in containment only"),
		},
		{
			Name:      "preserve_user_privacy",
			AppliesTo: []agent.ActionType{ActionDetectBias, ActionAuditBehavior, ActionValidateOutputs},
			Check:     denyFlag("contains_user_identifiers", "analysis inputs must be de-identified"),
		},
		{
			Name:  "maintain_transparency",
			Check: denyFlag("suppress_logging", "oversight actions cannot run unlogged"),
		},
		{
			Name:  "ensure_accountability",
			Check: denyFlag("skip_audit_trail", "oversight actions require an audit trail"),
		},
	}

	base, err := agent.NewBase(agent.Config{
		Name:          AgentName,
		Capabilities:  capabilities,
		Constraints:   constraints,
		LearningRate:  cfg.Runtime.LearningRate,
		MaxRetries:    cfg.Runtime.MaxRetries,
		RetryDelay:    cfg.Runtime.RetryDelay,
		ActionTimeout: cfg.Runtime.ActionTimeout,
	}, logger, recorder)
	if err != nil {
		return nil, err
	}
	a.Base = base

	base.MustRegister(ActionMonitorSafety, a.handleMonitorSafety)
	base.MustRegister(ActionCheckCompliance, a.handleCheckCompliance)
	base.MustRegister(ActionDetectBias, a.handleDetectBias)
	base.MustRegister(ActionPreventHarm, a.handlePreventHarm)
	base.MustRegister(ActionAuditBehavior, a.handleAuditBehavior)
	base.MustRegister(ActionSimulateThreats, a.handleSimulateThreats)
	base.MustRegister(ActionEnforceGuides, a.handleEnforceGuidelines)
	base.MustRegister(ActionGenerateReport, a.handleGenerateReport)
	base.MustRegister(ActionValidateOutputs, a.handleValidateOutputs)

	return a, nil
}

// denyFlag builds a predicate vetoing actions whose payload sets the named
// boolean flag. Absent or false flags allow: constraints are agent-wide
// policy and irrelevant ones default to allow.
func denyFlag(flag, reason string) agent.ConstraintFunc {
	return func(_ context.Context, action agent.Action) (bool, string) {
		if v, ok := action.Payload[flag].(bool); ok && v {
			return false, reason
		}
		return true, ""
	}
}

// Violations returns a snapshot of the retained violation log.
func (a *Agent) Violations() []schemas.SafetyViolation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schemas.SafetyViolation, len(a.violations))
	copy(out, a.violations)
	return out
}

// Guidelines returns a snapshot of the guideline catalog.
func (a *Agent) Guidelines() []schemas.EthicalGuideline {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schemas.EthicalGuideline, len(a.guidelines))
	copy(out, a.guidelines)
	return out
}

// ThreatHistory returns a snapshot of the retained simulation outcomes.
func (a *Agent) ThreatHistory() []schemas.ThreatOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schemas.ThreatOutcome, len(a.threatHistory))
	copy(out, a.threatHistory)
	return out
}

// Quarantine returns the outputs removed from the normal flow by
// validate_ai_outputs.
func (a *Agent) Quarantine() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.quarantine))
	copy(out, a.quarantine)
	return out
}

// appendViolations adds violations to the bounded log. Callers hold no lock.
func (a *Agent) appendViolations(vs []schemas.SafetyViolation) {
	if len(vs) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.violations = append(a.violations, vs...)
	if len(a.violations) > a.historyLimit {
		a.violations = a.violations[len(a.violations)-a.historyLimit:]
	}
}

// stringsFromPayload reads a payload list of strings under key.
func stringsFromPayload(payload map[string]interface{}, key string) []string {
	raw, ok := payload[key].([]interface{})
	if !ok {
		if direct, ok := payload[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
