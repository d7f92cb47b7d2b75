package schemas

import "time"

// IssueType categorizes a code issue discovered by a scan.
type IssueType string

const (
	IssueError       IssueType = "ERROR"
	IssueWarning     IssueType = "WARNING"
	IssuePerformance IssueType = "PERFORMANCE"
	IssueSecurity    IssueType = "SECURITY"
	IssueStyle       IssueType = "STYLE"
)

// CodeIssue is a single finding from a code scan. Issues are produced by the
// scan action and consumed by the repair actions, which filter on Type and
// AutoFixable.
type CodeIssue struct {
	ID          string    `json:"id"`
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	File        string    `json:"file"`
	Line        int       `json:"line"`
	Message     string    `json:"message"`
	Suggestion  string    `json:"suggestion,omitempty"`
	AutoFixable bool      `json:"auto_fixable"`
}

// TestResults summarizes one run of the project test suite.
type TestResults struct {
	Passed   bool          `json:"passed"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RepairResult describes the outcome of one repair batch. A batch only counts
// as successful when it fixed at least one issue and the full test suite
// passed afterwards; applied fixes with failing tests are a failed batch.
type RepairResult struct {
	ChangeSetID     string      `json:"change_set_id"`
	Success         bool        `json:"success"`
	IssuesFixed     int         `json:"issues_fixed"`
	IssuesRemaining int         `json:"issues_remaining"`
	NewIssues       []CodeIssue `json:"new_issues,omitempty"`
	Changes         []string    `json:"changes,omitempty"`
	TestResults     TestResults `json:"test_results"`
	Timestamp       time.Time   `json:"timestamp"`
}

// RefactorPlan is the ordered step plan built by the refactor action.
type RefactorPlan struct {
	Targets []string `json:"targets"`
	Steps   []string `json:"steps"`
}

// ValidationReport is the authoritative "are we done" answer produced by the
// validate action: it re-scans and checks that no high or critical severity
// issue remains, independent of what the repair batches reported.
type ValidationReport struct {
	Clean     bool        `json:"clean"`
	Remaining []CodeIssue `json:"remaining,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}
