package heal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
	"github.com/custodian-sh/custodian/internal/runner"
)

// IssueDetector is the pluggable analysis boundary. The default detectors
// shell out to the project's lint/typecheck/audit commands and lift their
// findings into CodeIssues; a real static-analysis engine slots in here.
type IssueDetector interface {
	Name() string
	Detect(ctx context.Context) ([]schemas.CodeIssue, error)
}

// commandDetector lifts a command's output into issues, one per non-empty
// output line. Command-level failure (tool crashed, not found) is an
// execution failure; findings with non-zero exit are ordinary data.
type commandDetector struct {
	name      string
	command   string
	issueType schemas.IssueType
	run       runner.CommandRunner
}

func (d *commandDetector) Name() string { return d.name }

func (d *commandDetector) Detect(ctx context.Context) ([]schemas.CodeIssue, error) {
	res := d.run.Run(ctx, d.command)
	if !res.Success && strings.TrimSpace(res.Output) == "" {
		// No findings and a failing process: the tool itself broke.
		return nil, fmt.Errorf("%s command failed: %s", d.name, res.Error)
	}

	var issues []schemas.CodeIssue
	for _, line := range strings.Split(res.Output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		issues = append(issues, schemas.CodeIssue{
			ID:          uuid.New().String(),
			Type:        d.issueType,
			Severity:    severityFor(d.issueType),
			Message:     line,
			Suggestion:  fmt.Sprintf("review %s finding", d.name),
			AutoFixable: d.issueType != schemas.IssueSecurity,
		})
	}
	return issues, nil
}

func severityFor(t schemas.IssueType) schemas.Severity {
	switch t {
	case schemas.IssueError, schemas.IssueSecurity:
		return schemas.SeverityHigh
	case schemas.IssuePerformance:
		return schemas.SeverityMedium
	default:
		return schemas.SeverityLow
	}
}

// handleScan runs every detector concurrently and replaces the current issue
// set with the merged findings. The scan is idempotent and authoritative:
// previous findings are discarded, not appended to.
func (a *Agent) handleScan(ctx context.Context, _ agent.Action) (interface{}, error) {
	issues, err := a.scan(ctx)
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (a *Agent) scan(ctx context.Context) ([]schemas.CodeIssue, error) {
	var (
		mu     sync.Mutex
		merged []schemas.CodeIssue
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, det := range a.detectors {
		det := det
		g.Go(func() error {
			found, err := det.Detect(gctx)
			if err != nil {
				return fmt.Errorf("detector %s: %w", det.Name(), err)
			}
			mu.Lock()
			merged = append(merged, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.issues = merged
	a.scanned = true
	a.mu.Unlock()

	a.logger.Info("Scan completed.", zap.Int("issues", len(merged)))

	out := make([]schemas.CodeIssue, len(merged))
	copy(out, merged)
	return out, nil
}
