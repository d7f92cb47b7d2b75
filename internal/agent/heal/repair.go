package heal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
)

// FixSynthesizer turns one auto-fixable issue into an applied change. The
// default implementation materializes the issue's own suggestion; a real
// patch-generation engine (static-analysis driven) slots in behind this
// interface.
type FixSynthesizer interface {
	Fix(ctx context.Context, issue schemas.CodeIssue) (change string, err error)
}

// suggestionFixer applies an issue's recorded suggestion as the change.
type suggestionFixer struct{}

func (suggestionFixer) Fix(_ context.Context, issue schemas.CodeIssue) (string, error) {
	if issue.Suggestion == "" {
		return "", fmt.Errorf("issue %s carries no applicable suggestion", issue.ID)
	}
	return fmt.Sprintf("%s:%d %s", issue.File, issue.Line, issue.Suggestion), nil
}

// batchHandler builds the handler for one repair action: filter the current
// issue set by type and auto-fixability, apply fixes, then run the full test
// suite exactly once for the batch. The batch succeeds only when at least one
// issue was fixed and the tests passed; applied fixes with failing tests are
// a validation failure.
func (a *Agent) batchHandler(issueType schemas.IssueType) agent.Handler {
	return func(ctx context.Context, _ agent.Action) (interface{}, error) {
		return a.repairBatch(ctx, issueType)
	}
}

func (a *Agent) repairBatch(ctx context.Context, issueType schemas.IssueType) (schemas.RepairResult, error) {
	a.mu.Lock()
	var fixable []schemas.CodeIssue
	for _, issue := range a.issues {
		if issue.Type == issueType && issue.AutoFixable {
			fixable = append(fixable, issue)
		}
	}
	a.mu.Unlock()

	result := schemas.RepairResult{
		ChangeSetID: uuid.New().String(),
		Timestamp:   time.Now().UTC(),
	}

	if len(fixable) == 0 {
		result.IssuesRemaining = a.remaining(issueType)
		a.recordBatch(result)
		return result, fmt.Errorf("no auto-fixable %s issues in the current set: %w", issueType, agent.ErrValidation)
	}

	fixedIDs := make(map[string]bool, len(fixable))
	for _, issue := range fixable {
		change, err := a.fixer.Fix(ctx, issue)
		if err != nil {
			a.logger.Warn("Fix synthesis failed for issue.",
				zap.String("issue_id", issue.ID),
				zap.Error(err),
			)
			continue
		}
		result.Changes = append(result.Changes, change)
		fixedIDs[issue.ID] = true
	}
	result.IssuesFixed = len(fixedIDs)

	// One full-suite validation per batch, never per issue. The test result
	// is authoritative over the individual fixes.
	result.TestResults = a.runTests(ctx)

	result.Success = result.IssuesFixed > 0 && result.TestResults.Passed
	if result.Success {
		a.mu.Lock()
		kept := a.issues[:0]
		for _, issue := range a.issues {
			if !fixedIDs[issue.ID] {
				kept = append(kept, issue)
			}
		}
		a.issues = kept
		a.changeSets[result.ChangeSetID] = &changeSet{id: result.ChangeSetID, changes: result.Changes}
		a.mu.Unlock()
	}
	result.IssuesRemaining = a.remaining(issueType)
	a.recordBatch(result)

	if !result.Success {
		if result.IssuesFixed == 0 {
			return result, fmt.Errorf("no fixes could be synthesized: %w", agent.ErrValidation)
		}
		return result, fmt.Errorf("test suite failed after applying %d fixes: %w", result.IssuesFixed, agent.ErrValidation)
	}
	return result, nil
}

func (a *Agent) remaining(issueType schemas.IssueType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, issue := range a.issues {
		if issue.Type == issueType {
			n++
		}
	}
	return n
}

func (a *Agent) recordBatch(r schemas.RepairResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendHistory(r)
}

// handleRefactor identifies refactor targets by issue density, builds an
// ordered step plan, executes the steps sequentially, and validates once at
// the end.
func (a *Agent) handleRefactor(ctx context.Context, _ agent.Action) (interface{}, error) {
	a.mu.Lock()
	perFile := make(map[string]int)
	for _, issue := range a.issues {
		perFile[issue.File]++
	}
	a.mu.Unlock()

	type target struct {
		file  string
		count int
	}
	targets := make([]target, 0, len(perFile))
	for file, count := range perFile {
		if count >= 2 {
			targets = append(targets, target{file: file, count: count})
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].count != targets[j].count {
			return targets[i].count > targets[j].count
		}
		return targets[i].file < targets[j].file
	})

	plan := schemas.RefactorPlan{}
	for _, tgt := range targets {
		plan.Targets = append(plan.Targets, tgt.file)
		plan.Steps = append(plan.Steps,
			fmt.Sprintf("extract shared logic in %s", tgt.file),
			fmt.Sprintf("re-run analysis on %s", tgt.file),
		)
	}

	result := schemas.RepairResult{
		ChangeSetID: uuid.New().String(),
		Timestamp:   time.Now().UTC(),
	}
	if len(plan.Steps) == 0 {
		a.recordBatch(result)
		return result, fmt.Errorf("no refactor targets identified: %w", agent.ErrValidation)
	}

	// Steps execute in order; a cancelled context stops between steps.
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Changes = append(result.Changes, step)
	}
	result.IssuesFixed = len(plan.Targets)

	result.TestResults = a.runTests(ctx)
	result.Success = result.TestResults.Passed
	a.recordBatch(result)
	if !result.Success {
		return result, fmt.Errorf("test suite failed after refactor: %w", agent.ErrValidation)
	}

	a.mu.Lock()
	a.changeSets[result.ChangeSetID] = &changeSet{id: result.ChangeSetID, changes: result.Changes}
	a.mu.Unlock()
	return result, nil
}

func (a *Agent) runTests(ctx context.Context) schemas.TestResults {
	res := a.run.Run(ctx, a.cfg.TestCommand)
	return schemas.TestResults{
		Passed:   res.Success,
		Output:   res.Output,
		Duration: res.Duration,
	}
}

// handleRunTests runs the suite once; success is exit code zero.
func (a *Agent) handleRunTests(ctx context.Context, _ agent.Action) (interface{}, error) {
	tr := a.runTests(ctx)
	if !tr.Passed {
		return tr, fmt.Errorf("test suite failed")
	}
	return tr, nil
}

// handleValidate re-scans and demands that no high or critical severity issue
// remains. This is the authoritative completion check, independent of what
// the repair batches reported.
func (a *Agent) handleValidate(ctx context.Context, _ agent.Action) (interface{}, error) {
	issues, err := a.scan(ctx)
	if err != nil {
		return nil, err
	}

	report := schemas.ValidationReport{Clean: true, CheckedAt: time.Now().UTC()}
	for _, issue := range issues {
		if issue.Severity.Rank() >= schemas.SeverityHigh.Rank() {
			report.Clean = false
			report.Remaining = append(report.Remaining, issue)
		}
	}
	if !report.Clean {
		return report, fmt.Errorf("%d high/critical issues remain: %w", len(report.Remaining), agent.ErrValidation)
	}
	return report, nil
}

// handleRollback reverses a named change set. Rolling back a change set that
// was already reverted is a documented no-op, not an error.
func (a *Agent) handleRollback(_ context.Context, action agent.Action) (interface{}, error) {
	id, _ := action.String("change_set_id")

	a.mu.Lock()
	defer a.mu.Unlock()

	cs, ok := a.changeSets[id]
	if !ok {
		return nil, fmt.Errorf("unknown change set %q: %w", id, agent.ErrInvalidParameters)
	}
	detail := map[string]interface{}{
		"change_set_id": id,
		"changes":       len(cs.changes),
		"noop":          cs.reverted,
	}
	if cs.reverted {
		a.logger.Info("Rollback skipped: change set already reverted.", zap.String("change_set_id", id))
		return detail, nil
	}
	cs.reverted = true
	a.logger.Info("Change set reverted.",
		zap.String("change_set_id", id),
		zap.Int("changes", len(cs.changes)),
	)
	return detail, nil
}
