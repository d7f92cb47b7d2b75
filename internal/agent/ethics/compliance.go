package ethics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
)

// allStandards is the default check set when the caller names none.
var allStandards = []schemas.ComplianceStandard{
	schemas.StandardSOC2,
	schemas.StandardISO27001,
	schemas.StandardGDPR,
	schemas.StandardCCPA,
	schemas.StandardHIPAA,
}

// relevantViolations maps each standard to the violation classes that put it
// at risk.
var relevantViolations = map[schemas.ComplianceStandard][]schemas.ViolationType{
	schemas.StandardSOC2:     {schemas.ViolationUnauthorizedAccess, schemas.ViolationDataLeak},
	schemas.StandardISO27001: {schemas.ViolationUnauthorizedAccess, schemas.ViolationDataLeak},
	schemas.StandardGDPR:     {schemas.ViolationDataLeak},
	schemas.StandardCCPA:     {schemas.ViolationDataLeak},
	schemas.StandardHIPAA:    {schemas.ViolationDataLeak, schemas.ViolationUnauthorizedAccess},
}

// handleCheckCompliance runs one check per requested standard, each
// independently. A new run replaces the prior record for that standard;
// results are never merged.
func (a *Agent) handleCheckCompliance(_ context.Context, action agent.Action) (interface{}, error) {
	standards := allStandards
	if names := stringsFromPayload(action.Payload, "standards"); len(names) > 0 {
		standards = standards[:0:0]
		for _, name := range names {
			standards = append(standards, schemas.ComplianceStandard(name))
		}
	}

	recheck := a.cfg.ComplianceRecheck
	if recheck <= 0 {
		recheck = 30 * 24 * time.Hour
	}

	checks := make([]schemas.ComplianceCheck, 0, len(standards))
	for _, std := range standards {
		check := a.checkStandard(std, recheck)
		checks = append(checks, check)

		a.mu.Lock()
		a.compliance[std] = check
		a.mu.Unlock()
	}

	a.logger.Info("Compliance checks completed.", zap.Int("standards", len(checks)))
	return checks, nil
}

// checkStandard grades one standard against the open violation log.
func (a *Agent) checkStandard(std schemas.ComplianceStandard, recheck time.Duration) schemas.ComplianceCheck {
	relevant, known := relevantViolations[std]
	now := time.Now().UTC()
	check := schemas.ComplianceCheck{
		Standard:    std,
		Status:      schemas.ComplianceCompliant,
		LastChecked: now,
		NextCheck:   now.Add(recheck),
	}
	if !known {
		check.Status = schemas.ComplianceNeedsReview
		check.Issues = []string{fmt.Sprintf("no checker registered for standard %s", std)}
		return check
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range a.violations {
		for _, t := range relevant {
			if v.Type != t {
				continue
			}
			check.Issues = append(check.Issues, fmt.Sprintf("open %s violation (%s): %s", v.Type, v.Severity, v.Description))
			if v.Severity.Rank() >= schemas.SeverityHigh.Rank() {
				check.Status = schemas.ComplianceNonCompliant
			} else if check.Status == schemas.ComplianceCompliant {
				check.Status = schemas.ComplianceNeedsReview
			}
		}
	}
	return check
}
