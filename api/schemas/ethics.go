package schemas

import "time"

// ViolationType categorizes a detected safety violation.
type ViolationType string

const (
	ViolationPromptInjection    ViolationType = "PROMPT_INJECTION"
	ViolationDataLeak           ViolationType = "DATA_LEAK"
	ViolationUnauthorizedAccess ViolationType = "UNAUTHORIZED_ACCESS"
	ViolationBias               ViolationType = "BIAS"
	ViolationHarmfulContent     ViolationType = "HARMFUL_CONTENT"
)

// SafetyViolation is an immutable record of one detected violation. Critical
// entries trigger an escalation side effect at detection time, before the
// detecting action returns.
type SafetyViolation struct {
	ID          string        `json:"id"`
	Type        ViolationType `json:"type"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
	DetectedAt  time.Time     `json:"detected_at"`
	Source      string        `json:"source"`
	Mitigation  string        `json:"mitigation,omitempty"`
}

// ComplianceStandard names a tracked regulatory or certification standard.
type ComplianceStandard string

const (
	StandardSOC2     ComplianceStandard = "SOC2"
	StandardISO27001 ComplianceStandard = "ISO27001"
	StandardGDPR     ComplianceStandard = "GDPR"
	StandardCCPA     ComplianceStandard = "CCPA"
	StandardHIPAA    ComplianceStandard = "HIPAA"
)

// ComplianceStatus is the outcome of one compliance check run.
type ComplianceStatus string

const (
	ComplianceCompliant    ComplianceStatus = "COMPLIANT"
	ComplianceNonCompliant ComplianceStatus = "NON_COMPLIANT"
	ComplianceNeedsReview  ComplianceStatus = "NEEDS_REVIEW"
)

// ComplianceCheck is one (standard, run) record. A newer run for the same
// standard supersedes the older record; results are never merged.
type ComplianceCheck struct {
	Standard    ComplianceStandard `json:"standard"`
	Status      ComplianceStatus   `json:"status"`
	Issues      []string           `json:"issues,omitempty"`
	LastChecked time.Time          `json:"last_checked"`
	NextCheck   time.Time          `json:"next_check"`
}

// EnforcementLevel controls what happens when an ethical guideline is
// violated: strict blocks the offending action, advisory and monitoring only
// log and count.
type EnforcementLevel string

const (
	EnforcementStrict     EnforcementLevel = "STRICT"
	EnforcementAdvisory   EnforcementLevel = "ADVISORY"
	EnforcementMonitoring EnforcementLevel = "MONITORING"
)

// EthicalGuideline is a static catalog entry. Only the violation counter and
// LastViolation timestamp mutate, and only through the enforcement action;
// guidelines are never deleted.
type EthicalGuideline struct {
	Principle     string           `json:"principle"`
	Description   string           `json:"description"`
	Enforcement   EnforcementLevel `json:"enforcement"`
	Violations    int              `json:"violations"`
	LastViolation *time.Time       `json:"last_violation,omitempty"`
}

// ThreatScenario is one entry in the fixed adversarial self-test catalog.
type ThreatScenario struct {
	Name        string        `json:"name"`
	Type        ViolationType `json:"type"`
	Description string        `json:"description"`
}

// ThreatOutcome records how the defenses held up against one simulated
// scenario. Outcomes feed later defense-improvement analysis.
type ThreatOutcome struct {
	Scenario  ThreatScenario `json:"scenario"`
	Defended  bool           `json:"defended"`
	Details   string         `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EthicsReport aggregates violations, compliance state, guideline counters
// and threat-simulation history into one persisted report.
type EthicsReport struct {
	ID            string             `json:"id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Score         float64            `json:"score"`
	Violations    []SafetyViolation  `json:"violations,omitempty"`
	Compliance    []ComplianceCheck  `json:"compliance,omitempty"`
	Guidelines    []EthicalGuideline `json:"guidelines,omitempty"`
	ThreatHistory []ThreatOutcome    `json:"threat_history,omitempty"`
	Summary       string             `json:"summary"`
}
