package schemas

import "time"

// KPIMetrics is a fixed-shape snapshot of the platform's key indicators.
// Ratio metrics are normalized to [0,1]; PageLoadTime is in seconds.
type KPIMetrics struct {
	UserEngagement float64 `json:"user_engagement"`
	ConversionRate float64 `json:"conversion_rate"`
	PageLoadTime   float64 `json:"page_load_time"`
	ErrorRate      float64 `json:"error_rate"`
	CostEfficiency float64 `json:"cost_efficiency"`
	SecurityScore  float64 `json:"security_score"`
}

// KPISnapshot is one entry in the bounded KPI history window.
type KPISnapshot struct {
	Metrics   KPIMetrics `json:"metrics"`
	Timestamp time.Time  `json:"timestamp"`
}

// KPIAlertLevel grades a threshold breach raised during KPI analysis.
type KPIAlertLevel string

const (
	KPIAlertWarning  KPIAlertLevel = "WARNING"
	KPIAlertCritical KPIAlertLevel = "CRITICAL"
)

// KPIAlert is raised when a metric crosses a configured ceiling or floor.
type KPIAlert struct {
	Metric  string        `json:"metric"`
	Level   KPIAlertLevel `json:"level"`
	Value   float64       `json:"value"`
	Limit   float64       `json:"limit"`
	Message string        `json:"message"`
}

// KPIAnalysis is the result of one analyze cycle: the overall weighted score,
// the per-metric percent change versus the previous snapshot, and any
// threshold alerts. Trends is nil when the history holds fewer than two
// snapshots.
type KPIAnalysis struct {
	Score     float64            `json:"score"`
	Trends    map[string]float64 `json:"trends,omitempty"`
	Alerts    []KPIAlert         `json:"alerts,omitempty"`
	Snapshot  KPISnapshot        `json:"snapshot"`
	WindowLen int                `json:"window_len"`
}

// OptimizationSuggestion is a ranked improvement proposal. Ranking is by
// leverage (Impact/Effort) descending, with Priority breaking ties.
type OptimizationSuggestion struct {
	Category            string   `json:"category"`
	Priority            Priority `json:"priority"`
	Impact              float64  `json:"impact"`
	Effort              float64  `json:"effort"`
	Description         string   `json:"description"`
	ExpectedImprovement string   `json:"expected_improvement"`
	Implementation      []string `json:"implementation,omitempty"`
}

// Leverage is the ranking key for suggestions. A zero-effort suggestion is
// treated as maximally cheap rather than dividing by zero.
func (s OptimizationSuggestion) Leverage() float64 {
	if s.Effort <= 0 {
		return s.Impact * 1000
	}
	return s.Impact / s.Effort
}

// TrendPrediction is a linear-regression extrapolation of one metric. An
// empty prediction set (not an error) is returned when the history holds
// fewer than three points.
type TrendPrediction struct {
	Metric     string    `json:"metric"`
	Horizon    int       `json:"horizon"`
	Current    float64   `json:"current"`
	Predicted  []float64 `json:"predicted"`
	Slope      float64   `json:"slope"`
	Confidence float64   `json:"confidence"`
}

// InsightSummary composes the most recent KPI analysis, trend predictions and
// the top ranked optimization suggestions into one report. Pure aggregation;
// no new computation happens here.
type InsightSummary struct {
	Analysis    *KPIAnalysis             `json:"analysis,omitempty"`
	Predictions []TrendPrediction        `json:"predictions,omitempty"`
	TopActions  []OptimizationSuggestion `json:"top_actions,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
}
