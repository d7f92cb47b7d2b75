package heal

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
	"github.com/custodian-sh/custodian/internal/config"
	"github.com/custodian-sh/custodian/internal/runner"
)

// fakeRunner scripts command results by substring match.
type fakeRunner struct {
	mu       sync.Mutex
	testPass bool
	testRuns int
}

func (f *fakeRunner) Run(_ context.Context, command string) runner.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(command, "test") {
		f.testRuns++
		if f.testPass {
			return runner.CommandResult{Success: true, Output: "ok"}
		}
		return runner.CommandResult{Success: false, ExitCode: 1, Output: "FAIL", Error: "exit status 1"}
	}
	return runner.CommandResult{Success: true}
}

func (f *fakeRunner) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.testRuns
}

// staticDetector returns a fixed issue list.
type staticDetector struct {
	name   string
	issues []schemas.CodeIssue
}

func (d *staticDetector) Name() string { return d.name }
func (d *staticDetector) Detect(context.Context) ([]schemas.CodeIssue, error) {
	return d.issues, nil
}

func issue(id string, t schemas.IssueType, sev schemas.Severity, fixable bool) schemas.CodeIssue {
	return schemas.CodeIssue{
		ID:          id,
		Type:        t,
		Severity:    sev,
		File:        "src/app.ts",
		Line:        42,
		Message:     "something is off",
		Suggestion:  "apply the obvious fix",
		AutoFixable: fixable,
	}
}

func testAgentConfig() config.HealConfig {
	cfg := config.NewDefaultConfig().Agents.Heal
	cfg.Runtime.MaxRetries = 0
	cfg.Runtime.RetryDelay = 0
	cfg.TestCommand = "npm test"
	return cfg
}

func newHealAgent(t *testing.T, run *fakeRunner, issues ...schemas.CodeIssue) *Agent {
	t.Helper()
	a, err := New(testAgentConfig(), zap.NewNop(), agent.NopRecorder{}, run,
		WithDetectors(&staticDetector{name: "static", issues: issues}),
	)
	require.NoError(t, err)
	return a
}

func scanFirst(t *testing.T, a *Agent) {
	t.Helper()
	res := a.Execute(context.Background(), agent.NewAction(ActionScanCode, nil))
	require.Equal(t, agent.StatusSuccess, res.Status)
}

// Scenario: an agent limited to scan_code rejects a repair action outright.
func TestUndeclaredCapabilityIsRejected(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run)

	res := a.Execute(context.Background(), agent.NewAction("deploy_to_prod", nil))

	assert.Equal(t, agent.StatusRejected, res.Status)
	assert.Equal(t, agent.ErrCodeCapabilityNotDeclared, res.ErrorCode)
}

func TestRepairDeniedBeforeFirstScan(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run, issue("i1", schemas.IssueError, schemas.SeverityHigh, true))

	res := a.Execute(context.Background(), agent.NewAction(ActionFixErrors, nil))

	assert.Equal(t, agent.StatusDenied, res.Status)
	assert.Equal(t, "require_prior_scan", res.DeniedBy)
	assert.Zero(t, run.runs(), "denied repair must not run the test suite")
}

func TestScanReplacesIssueSet(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run,
		issue("i1", schemas.IssueError, schemas.SeverityHigh, true),
		issue("i2", schemas.IssueWarning, schemas.SeverityLow, true),
	)

	scanFirst(t, a)
	require.Len(t, a.Issues(), 2)

	// A second scan is authoritative, not additive.
	scanFirst(t, a)
	assert.Len(t, a.Issues(), 2)
}

func TestRepairBatchSuccess(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run,
		issue("i1", schemas.IssueError, schemas.SeverityHigh, true),
		issue("i2", schemas.IssueError, schemas.SeverityHigh, true),
		issue("i3", schemas.IssueWarning, schemas.SeverityLow, true),
	)
	scanFirst(t, a)

	res := a.Execute(context.Background(), agent.NewAction(ActionFixErrors, nil))

	require.Equal(t, agent.StatusSuccess, res.Status)
	batch, ok := res.Detail.(schemas.RepairResult)
	require.True(t, ok)
	assert.True(t, batch.Success)
	assert.Equal(t, 2, batch.IssuesFixed)
	assert.Equal(t, 0, batch.IssuesRemaining)
	assert.Equal(t, 1, run.runs(), "one test run per batch, not per issue")
	assert.Len(t, a.Issues(), 1, "fixed issues leave the current set")
}

// Applied fixes with failing tests are a failed batch; validation is
// authoritative over intermediate success signals.
func TestRepairBatchFailsWhenTestsFail(t *testing.T) {
	run := &fakeRunner{testPass: false}
	a := newHealAgent(t, run, issue("i1", schemas.IssueError, schemas.SeverityHigh, true))
	scanFirst(t, a)

	res := a.Execute(context.Background(), agent.NewAction(ActionFixErrors, nil))

	assert.Equal(t, agent.StatusFailed, res.Status)
	assert.Equal(t, agent.ErrCodeValidationFailure, res.ErrorCode)
	batch, ok := res.Detail.(schemas.RepairResult)
	require.True(t, ok)
	assert.False(t, batch.Success)
	assert.Equal(t, 1, batch.IssuesFixed, "fixes applied, batch still failed")
	assert.Len(t, a.Issues(), 1, "a failed batch must not consume issues")
}

// A batch that fixed nothing fails regardless of the test outcome.
func TestRepairBatchFailsWithZeroFixes(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run, issue("i1", schemas.IssueError, schemas.SeverityHigh, false))
	scanFirst(t, a)

	res := a.Execute(context.Background(), agent.NewAction(ActionFixErrors, nil))

	assert.Equal(t, agent.StatusFailed, res.Status)
	batch, ok := res.Detail.(schemas.RepairResult)
	require.True(t, ok)
	assert.False(t, batch.Success)
	assert.Zero(t, batch.IssuesFixed)
}

func TestRunTestsActionMirrorsExitCode(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run)

	res := a.Execute(context.Background(), agent.NewAction(ActionRunTests, nil))
	require.Equal(t, agent.StatusSuccess, res.Status)

	run.mu.Lock()
	run.testPass = false
	run.mu.Unlock()

	res = a.Execute(context.Background(), agent.NewAction(ActionRunTests, nil))
	assert.Equal(t, agent.StatusFailed, res.Status)
}

func TestValidateFixesAuthoritative(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run, issue("i1", schemas.IssueError, schemas.SeverityCritical, true))

	res := a.Execute(context.Background(), agent.NewAction(ActionValidateFixes, nil))

	assert.Equal(t, agent.StatusFailed, res.Status)
	assert.Equal(t, agent.ErrCodeValidationFailure, res.ErrorCode)
	report, ok := res.Detail.(schemas.ValidationReport)
	require.True(t, ok)
	assert.False(t, report.Clean)
	require.Len(t, report.Remaining, 1)
}

func TestValidateFixesCleanSet(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run, issue("i1", schemas.IssueWarning, schemas.SeverityLow, true))

	res := a.Execute(context.Background(), agent.NewAction(ActionValidateFixes, nil))

	require.Equal(t, agent.StatusSuccess, res.Status)
	report, ok := res.Detail.(schemas.ValidationReport)
	require.True(t, ok)
	assert.True(t, report.Clean)
}

func TestRollbackIsIdempotent(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run, issue("i1", schemas.IssueError, schemas.SeverityHigh, true))
	scanFirst(t, a)

	fixRes := a.Execute(context.Background(), agent.NewAction(ActionFixErrors, nil))
	require.Equal(t, agent.StatusSuccess, fixRes.Status)
	batch := fixRes.Detail.(schemas.RepairResult)

	payload := map[string]interface{}{"change_set_id": batch.ChangeSetID}

	first := a.Execute(context.Background(), agent.NewAction(ActionRollbackChanges, payload))
	require.Equal(t, agent.StatusSuccess, first.Status)
	assert.Equal(t, false, first.Detail.(map[string]interface{})["noop"])

	second := a.Execute(context.Background(), agent.NewAction(ActionRollbackChanges, payload))
	require.Equal(t, agent.StatusSuccess, second.Status)
	assert.Equal(t, true, second.Detail.(map[string]interface{})["noop"], "second rollback is a documented no-op")
}

func TestRollbackUnknownChangeSet(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run)

	res := a.Execute(context.Background(), agent.NewAction(ActionRollbackChanges,
		map[string]interface{}{"change_set_id": "no-such-id"}))

	assert.Equal(t, agent.StatusFailed, res.Status)
	assert.Equal(t, agent.ErrCodeInvalidParameters, res.ErrorCode)
	assert.Equal(t, 1, res.Attempts, "invalid parameters must not burn retries")
}

func TestRollbackWithoutIDIsDenied(t *testing.T) {
	run := &fakeRunner{testPass: true}
	a := newHealAgent(t, run)

	res := a.Execute(context.Background(), agent.NewAction(ActionRollbackChanges, nil))

	assert.Equal(t, agent.StatusDenied, res.Status)
	assert.Equal(t, "rollback_requires_change_set", res.DeniedBy)
}

func TestRefactorBuildsOrderedPlan(t *testing.T) {
	run := &fakeRunner{testPass: true}
	hot := issue("h1", schemas.IssueWarning, schemas.SeverityLow, true)
	hot2 := issue("h2", schemas.IssueStyle, schemas.SeverityLow, true)
	a := newHealAgent(t, run, hot, hot2)
	scanFirst(t, a)

	res := a.Execute(context.Background(), agent.NewAction(ActionRefactorCode, nil))

	require.Equal(t, agent.StatusSuccess, res.Status)
	batch := res.Detail.(schemas.RepairResult)
	assert.NotEmpty(t, batch.Changes)
	assert.Equal(t, 1, run.runs(), "refactor validates once at the end")
}

func TestRepairHistoryIsBounded(t *testing.T) {
	run := &fakeRunner{testPass: true}
	cfg := testAgentConfig()
	cfg.Runtime.HistorySize = 3
	a, err := New(cfg, zap.NewNop(), agent.NopRecorder{}, run,
		WithDetectors(&staticDetector{name: "static"}),
	)
	require.NoError(t, err)
	scanFirst(t, a)

	for i := 0; i < 6; i++ {
		a.Execute(context.Background(), agent.NewAction(ActionFixErrors, nil))
	}

	assert.LessOrEqual(t, len(a.RepairHistory()), 3)
}

func TestCommandDetectorLiftsOutputLines(t *testing.T) {
	d := &commandDetector{
		name:      "lint",
		command:   "lint",
		issueType: schemas.IssueWarning,
		run:       scriptedRunner{out: "warn one\nwarn two\n"},
	}

	issues, err := d.Detect(context.Background())

	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, schemas.IssueWarning, issues[0].Type)
	assert.True(t, issues[0].AutoFixable)
}

func TestCommandDetectorToolCrash(t *testing.T) {
	d := &commandDetector{
		name:      "audit",
		command:   "audit",
		issueType: schemas.IssueSecurity,
		run:       scriptedRunner{fail: true},
	}

	_, err := d.Detect(context.Background())
	assert.Error(t, err)
}

type scriptedRunner struct {
	out  string
	fail bool
}

func (s scriptedRunner) Run(context.Context, string) runner.CommandResult {
	if s.fail {
		return runner.CommandResult{Success: false, Error: "command not found", ExitCode: -1}
	}
	return runner.CommandResult{Success: true, Output: s.out}
}

func TestSuggestionFixerRequiresSuggestion(t *testing.T) {
	f := suggestionFixer{}

	_, err := f.Fix(context.Background(), schemas.CodeIssue{ID: "x"})
	assert.Error(t, err)

	change, err := f.Fix(context.Background(), issue("ok", schemas.IssueError, schemas.SeverityHigh, true))
	require.NoError(t, err)
	assert.Equal(t, "src/app.ts:42 apply the obvious fix", change)
}
