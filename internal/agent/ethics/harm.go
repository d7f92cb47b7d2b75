package ethics

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
)

// maxInputLen bounds a single analyzed input before it is flagged as
// suspicious padding.
const maxInputLen = 64 * 1024

// HarmPrevention is the outcome of one prevent_harm run. All three sub-step
// result sets are populated independently; an empty-input validation failure
// does not skip pattern detection or measure application.
type HarmPrevention struct {
	InputIssues     []string                  `json:"input_issues,omitempty"`
	Violations      []schemas.SafetyViolation `json:"violations,omitempty"`
	MeasuresApplied []string                  `json:"measures_applied,omitempty"`
}

// handlePreventHarm validates inputs, scans them for harmful patterns and
// applies the mitigations the findings call for. The three sub-steps check
// independent concerns and all run unconditionally.
func (a *Agent) handlePreventHarm(ctx context.Context, action agent.Action) (interface{}, error) {
	inputs := stringsFromPayload(action.Payload, "inputs")
	result := HarmPrevention{}

	// Step 1: input validation.
	if len(inputs) == 0 {
		result.InputIssues = append(result.InputIssues, "no inputs supplied")
	}
	for i, in := range inputs {
		if in == "" {
			result.InputIssues = append(result.InputIssues, fmt.Sprintf("input %d is empty", i))
		}
		if len(in) > maxInputLen {
			result.InputIssues = append(result.InputIssues, fmt.Sprintf("input %d exceeds %d bytes", i, maxInputLen))
		}
	}

	// Step 2: harmful-pattern detection.
	for _, det := range a.detectors {
		result.Violations = append(result.Violations, det.Detect(ctx, inputs)...)
	}
	a.appendViolations(result.Violations)

	// Step 3: safety-measure application.
	seen := make(map[string]bool)
	for _, v := range result.Violations {
		if v.Mitigation == "" || seen[v.Mitigation] {
			continue
		}
		seen[v.Mitigation] = true
		result.MeasuresApplied = append(result.MeasuresApplied, v.Mitigation)
	}

	a.logger.Info("Harm prevention completed.",
		zap.Int("input_issues", len(result.InputIssues)),
		zap.Int("violations", len(result.Violations)),
		zap.Int("measures", len(result.MeasuresApplied)),
	)
	return result, nil
}

// BiasFinding couples one flagged output with the mitigation already applied
// to it. Detection and mitigation are a single step here, unlike
// monitor_safety where response is the caller's decision.
type BiasFinding struct {
	Output     string                    `json:"output"`
	Mitigated  string                    `json:"mitigated"`
	Violations []schemas.SafetyViolation `json:"violations"`
}

func (a *Agent) handleDetectBias(ctx context.Context, action agent.Action) (interface{}, error) {
	outputs := stringsFromPayload(action.Payload, "outputs")

	var biasDet Detector
	for _, det := range a.detectors {
		if det.Type() == schemas.ViolationBias {
			biasDet = det
			break
		}
	}
	if biasDet == nil {
		return nil, fmt.Errorf("no bias detector configured: %w", agent.ErrNonRetryable)
	}

	var findings []BiasFinding
	for _, out := range outputs {
		vs := biasDet.Detect(ctx, []string{out})
		if len(vs) == 0 {
			continue
		}
		findings = append(findings, BiasFinding{
			Output:     truncate(out, 200),
			Mitigated:  "[removed: group generalization pending rewrite]",
			Violations: vs,
		})
		a.appendViolations(vs)
	}

	a.logger.Info("Bias detection completed.",
		zap.Int("outputs", len(outputs)),
		zap.Int("flagged", len(findings)),
	)
	return findings, nil
}

// AuditResult summarizes a behavior-log replay.
type AuditResult struct {
	Entries      int                       `json:"entries"`
	Violations   []schemas.SafetyViolation `json:"violations,omitempty"`
	Remediations []string                  `json:"remediations,omitempty"`
}

// handleAuditBehavior replays a caller-supplied behavior log through the
// detector set. Every violation gets a remediation entry.
func (a *Agent) handleAuditBehavior(ctx context.Context, action agent.Action) (interface{}, error) {
	entries := stringsFromPayload(action.Payload, "log")

	result := AuditResult{Entries: len(entries)}
	for _, det := range a.detectors {
		result.Violations = append(result.Violations, det.Detect(ctx, entries)...)
	}
	a.appendViolations(result.Violations)

	for _, v := range result.Violations {
		remediation := v.Mitigation
		if remediation == "" {
			remediation = fmt.Sprintf("review flagged entry for %s", v.Type)
		}
		result.Remediations = append(result.Remediations, remediation)
	}

	a.logger.Info("Behavior audit completed.",
		zap.Int("entries", result.Entries),
		zap.Int("violations", len(result.Violations)),
	)
	return result, nil
}

// OutputValidation is the outcome of the hard output gate: unsafe outputs
// are quarantined, not merely flagged.
type OutputValidation struct {
	Safe        []string                  `json:"safe,omitempty"`
	Quarantined []string                  `json:"quarantined,omitempty"`
	Violations  []schemas.SafetyViolation `json:"violations,omitempty"`
}

// handleValidateOutputs removes unsafe outputs from the normal flow. An
// output with any detector finding goes to quarantine; only clean outputs
// come back in Safe.
func (a *Agent) handleValidateOutputs(ctx context.Context, action agent.Action) (interface{}, error) {
	outputs := stringsFromPayload(action.Payload, "outputs")

	result := OutputValidation{}
	var quarantined []string
	for _, out := range outputs {
		var vs []schemas.SafetyViolation
		for _, det := range a.detectors {
			vs = append(vs, det.Detect(ctx, []string{out})...)
		}
		if len(vs) == 0 {
			result.Safe = append(result.Safe, out)
			continue
		}
		result.Quarantined = append(result.Quarantined, truncate(out, 200))
		result.Violations = append(result.Violations, vs...)
		quarantined = append(quarantined, truncate(out, 200))
	}
	a.appendViolations(result.Violations)

	if len(quarantined) > 0 {
		a.mu.Lock()
		a.quarantine = append(a.quarantine, quarantined...)
		if len(a.quarantine) > a.historyLimit {
			a.quarantine = a.quarantine[len(a.quarantine)-a.historyLimit:]
		}
		a.mu.Unlock()
	}

	a.logger.Info("Output validation completed.",
		zap.Int("outputs", len(outputs)),
		zap.Int("quarantined", len(result.Quarantined)),
	)
	return result, nil
}
