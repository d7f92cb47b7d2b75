// Package heal implements the code-repair agent: it scans the project for
// issues, applies auto-fixable repairs in validated batches, and never
// accepts a fix without a full test-suite run.
package heal

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
	"github.com/custodian-sh/custodian/internal/config"
	"github.com/custodian-sh/custodian/internal/runner"
)

// AgentName identifies the agent in logs and learning records.
const AgentName = "heal"

// The agent's closed action vocabulary. Every constant here has a handler
// registered in New; an unregistered type cannot reach dispatch.
const (
	ActionScanCode          agent.ActionType = "scan_code"
	ActionFixErrors         agent.ActionType = "fix_errors"
	ActionFixWarnings       agent.ActionType = "fix_warnings"
	ActionOptimize          agent.ActionType = "optimize_performance"
	ActionFixSecurityIssues agent.ActionType = "fix_security_issues"
	ActionRefactorCode      agent.ActionType = "refactor_code"
	ActionRunTests          agent.ActionType = "run_tests"
	ActionValidateFixes     agent.ActionType = "validate_fixes"
	ActionRollbackChanges   agent.ActionType = "rollback_changes"
)

// repairActions are the actions gated by the scan-first constraint.
var repairActions = []agent.ActionType{
	ActionFixErrors,
	ActionFixWarnings,
	ActionOptimize,
	ActionFixSecurityIssues,
	ActionRefactorCode,
}

// changeSet tracks one applied repair batch so it can be rolled back.
type changeSet struct {
	id       string
	changes  []string
	reverted bool
}

// Agent is the code-repair agent.
type Agent struct {
	*agent.Base

	cfg    config.HealConfig
	logger *zap.Logger
	run    runner.CommandRunner

	detectors []IssueDetector
	fixer     FixSynthesizer

	// mu guards the mutable state below. Execute is already serialized per
	// instance; the mutex additionally covers read access from outside.
	mu            sync.Mutex
	issues        []schemas.CodeIssue
	scanned       bool
	repairHistory []schemas.RepairResult
	changeSets    map[string]*changeSet
	historyLimit  int
}

// Option customizes agent construction.
type Option func(*Agent)

// WithDetectors replaces the default command-backed issue detectors.
func WithDetectors(detectors ...IssueDetector) Option {
	return func(a *Agent) { a.detectors = detectors }
}

// WithFixer replaces the default fix synthesizer.
func WithFixer(f FixSynthesizer) Option {
	return func(a *Agent) { a.fixer = f }
}

// New builds the heal agent with its capability set, safety constraints and
// handlers wired.
func New(cfg config.HealConfig, logger *zap.Logger, recorder agent.Recorder, run runner.CommandRunner, opts ...Option) (*Agent, error) {
	a := &Agent{
		cfg:          cfg,
		logger:       logger.Named(AgentName),
		run:          run,
		changeSets:   make(map[string]*changeSet),
		historyLimit: cfg.Runtime.HistorySize,
	}
	if a.historyLimit <= 0 {
		a.historyLimit = 100
	}
	a.detectors = []IssueDetector{
		&commandDetector{name: "lint", command: cfg.LintCommand, issueType: schemas.IssueWarning, run: run},
		&commandDetector{name: "typecheck", command: cfg.TypecheckCommand, issueType: schemas.IssueError, run: run},
		&commandDetector{name: "audit", command: cfg.AuditCommand, issueType: schemas.IssueSecurity, run: run},
	}
	a.fixer = &suggestionFixer{}
	for _, opt := range opts {
		opt(a)
	}

	base, err := agent.NewBase(agent.Config{
		Name: AgentName,
		Capabilities: []agent.ActionType{
			ActionScanCode,
			ActionFixErrors,
			ActionFixWarnings,
			ActionOptimize,
			ActionFixSecurityIssues,
			ActionRefactorCode,
			ActionRunTests,
			ActionValidateFixes,
			ActionRollbackChanges,
		},
		Constraints: []agent.Constraint{
			{
				// Repairs operate on the current issue set; without an
				// authoritative scan there is nothing safe to repair.
				Name:      "require_prior_scan",
				AppliesTo: repairActions,
				Check:     a.checkPriorScan,
			},
			{
				Name:      "rollback_requires_change_set",
				AppliesTo: []agent.ActionType{ActionRollbackChanges},
				Check:     a.checkRollbackTarget,
			},
		},
		LearningRate:  cfg.Runtime.LearningRate,
		MaxRetries:    cfg.Runtime.MaxRetries,
		RetryDelay:    cfg.Runtime.RetryDelay,
		ActionTimeout: cfg.Runtime.ActionTimeout,
	}, logger, recorder)
	if err != nil {
		return nil, err
	}
	a.Base = base

	base.MustRegister(ActionScanCode, a.handleScan)
	base.MustRegister(ActionFixErrors, a.batchHandler(schemas.IssueError))
	base.MustRegister(ActionFixWarnings, a.batchHandler(schemas.IssueWarning))
	base.MustRegister(ActionOptimize, a.batchHandler(schemas.IssuePerformance))
	base.MustRegister(ActionFixSecurityIssues, a.batchHandler(schemas.IssueSecurity))
	base.MustRegister(ActionRefactorCode, a.handleRefactor)
	base.MustRegister(ActionRunTests, a.handleRunTests)
	base.MustRegister(ActionValidateFixes, a.handleValidate)
	base.MustRegister(ActionRollbackChanges, a.handleRollback)

	return a, nil
}

func (a *Agent) checkPriorScan(_ context.Context, _ agent.Action) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.scanned {
		return false, "no authoritative issue scan has run yet"
	}
	return true, ""
}

func (a *Agent) checkRollbackTarget(_ context.Context, action agent.Action) (bool, string) {
	if _, ok := action.String("change_set_id"); !ok {
		return false, "rollback requires a change_set_id"
	}
	return true, ""
}

// Issues returns a snapshot of the current issue set.
func (a *Agent) Issues() []schemas.CodeIssue {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schemas.CodeIssue, len(a.issues))
	copy(out, a.issues)
	return out
}

// RepairHistory returns a snapshot of the retained repair batches.
func (a *Agent) RepairHistory() []schemas.RepairResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schemas.RepairResult, len(a.repairHistory))
	copy(out, a.repairHistory)
	return out
}

func (a *Agent) appendHistory(r schemas.RepairResult) {
	a.repairHistory = append(a.repairHistory, r)
	if len(a.repairHistory) > a.historyLimit {
		a.repairHistory = a.repairHistory[len(a.repairHistory)-a.historyLimit:]
	}
}
