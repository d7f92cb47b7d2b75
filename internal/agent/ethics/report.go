package ethics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
)

// severityPenalty weighs each open violation against the ethics score.
var severityPenalty = map[schemas.Severity]float64{
	schemas.SeverityCritical: 0.10,
	schemas.SeverityHigh:     0.05,
	schemas.SeverityMedium:   0.02,
	schemas.SeverityLow:      0.01,
}

// handleGenerateReport aggregates the agent's accumulated state into one
// report and persists it. Persistence is best effort: a store failure is
// logged and the report is still returned.
func (a *Agent) handleGenerateReport(_ context.Context, _ agent.Action) (interface{}, error) {
	a.mu.Lock()
	violations := make([]schemas.SafetyViolation, len(a.violations))
	copy(violations, a.violations)
	compliance := make([]schemas.ComplianceCheck, 0, len(a.compliance))
	for _, c := range a.compliance {
		compliance = append(compliance, c)
	}
	guidelines := make([]schemas.EthicalGuideline, len(a.guidelines))
	copy(guidelines, a.guidelines)
	threats := make([]schemas.ThreatOutcome, len(a.threatHistory))
	copy(threats, a.threatHistory)
	a.mu.Unlock()

	report := schemas.EthicsReport{
		ID:            uuid.New().String(),
		GeneratedAt:   time.Now().UTC(),
		Score:         ethicsScore(violations, compliance, threats),
		Violations:    violations,
		Compliance:    compliance,
		Guidelines:    guidelines,
		ThreatHistory: threats,
	}
	report.Summary = fmt.Sprintf(
		"score %.2f: %d violations, %d compliance checks, %d guideline principles, %d simulated threats",
		report.Score, len(violations), len(compliance), len(guidelines), len(threats),
	)

	if err := a.store.Save(report); err != nil {
		a.logger.Error("Failed to persist ethics report.",
			zap.String("report_id", report.ID),
			zap.Error(err),
		)
	}

	a.logger.Info("Ethics report generated.",
		zap.String("report_id", report.ID),
		zap.Float64("score", report.Score),
	)
	return report, nil
}

// ethicsScore starts from a clean 1.0 and deducts for open violations,
// degraded compliance and undefended simulated threats, clamped to [0, 1].
func ethicsScore(violations []schemas.SafetyViolation, compliance []schemas.ComplianceCheck, threats []schemas.ThreatOutcome) float64 {
	score := 1.0
	for _, v := range violations {
		score -= severityPenalty[v.Severity]
	}
	for _, c := range compliance {
		switch c.Status {
		case schemas.ComplianceNonCompliant:
			score -= 0.10
		case schemas.ComplianceNeedsReview:
			score -= 0.05
		}
	}
	for _, t := range threats {
		if !t.Defended {
			score -= 0.05
		}
	}
	if score < 0 {
		return 0
	}
	return score
}
