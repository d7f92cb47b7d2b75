package schemas

import "time"

// Severity grades a finding, violation, or issue.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank maps a severity onto an integer scale for comparisons. Unknown
// severities rank below LOW so they never outrank a real finding.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Priority grades an optimization suggestion. It shares the severity scale's
// vocabulary but is kept distinct: a CRITICAL priority is a business call,
// not a safety one.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank maps a priority onto an integer scale for tie-breaking.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// LearningRecord is one append-only entry in the learning/metrics store.
// Downstream trend analysis consumes these; the execution core only writes.
type LearningRecord struct {
	ID        string      `json:"id"`
	Agent     string      `json:"agent"`
	Category  string      `json:"category"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Alert is a best-effort notification pushed to the issue/alert sink.
type Alert struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}
