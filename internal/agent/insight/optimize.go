package insight

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
)

// handleSuggest produces optimization suggestions from the latest KPI
// analysis and ranks them by leverage: impact divided by effort, descending,
// with the stated priority breaking ties. Suggestions are surfaced by
// leverage, not raw impact.
func (a *Agent) handleSuggest(_ context.Context, _ agent.Action) (interface{}, error) {
	a.mu.Lock()
	analysis := a.analysis
	a.mu.Unlock()

	suggestions := buildSuggestions(analysis)
	RankSuggestions(suggestions)

	a.mu.Lock()
	a.suggestions = suggestions
	a.mu.Unlock()

	a.logger.Info("Optimization suggestions ranked.", zap.Int("count", len(suggestions)))
	return suggestions, nil
}

// RankSuggestions orders suggestions by Impact/Effort descending, ties broken
// by stated priority, then by impact.
func RankSuggestions(s []schemas.OptimizationSuggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		li, lj := s[i].Leverage(), s[j].Leverage()
		if li != lj {
			return li > lj
		}
		if pi, pj := s[i].Priority.Rank(), s[j].Priority.Rank(); pi != pj {
			return pi > pj
		}
		return s[i].Impact > s[j].Impact
	})
}

// buildSuggestions derives proposals from the latest analysis. Without an
// analysis it falls back to the static low-effort hygiene catalog.
func buildSuggestions(analysis *schemas.KPIAnalysis) []schemas.OptimizationSuggestion {
	base := []schemas.OptimizationSuggestion{
		{
			Category:            "infrastructure",
			Priority:            schemas.PriorityMedium,
			Impact:              0.4,
			Effort:              0.2,
			Description:         "Enable response caching on hot read endpoints",
			ExpectedImprovement: "10-20% page load reduction",
			Implementation:      []string{"profile hot endpoints", "add cache headers", "verify hit rate"},
		},
		{
			Category:            "cost",
			Priority:            schemas.PriorityLow,
			Impact:              0.3,
			Effort:              0.15,
			Description:         "Right-size background worker pool",
			ExpectedImprovement: "5-10% compute cost reduction",
			Implementation:      []string{"review worker utilization", "tune concurrency"},
		},
	}
	if analysis == nil {
		return base
	}

	m := analysis.Snapshot.Metrics
	if m.ErrorRate > 0.02 {
		base = append(base, schemas.OptimizationSuggestion{
			Category:            "reliability",
			Priority:            schemas.PriorityCritical,
			Impact:              0.9,
			Effort:              0.4,
			Description:         "Reduce error rate: triage top failing endpoints",
			ExpectedImprovement: "error rate back under 2%",
			Implementation:      []string{"group errors by endpoint", "fix top three offenders", "add regression tests"},
		})
	}
	if m.PageLoadTime > 2 {
		base = append(base, schemas.OptimizationSuggestion{
			Category:            "performance",
			Priority:            schemas.PriorityHigh,
			Impact:              0.7,
			Effort:              0.35,
			Description:         "Cut page weight: defer non-critical scripts",
			ExpectedImprovement: "load time under 2s",
			Implementation:      []string{"audit bundle size", "lazy-load below the fold"},
		})
	}
	if m.SecurityScore < 0.8 {
		base = append(base, schemas.OptimizationSuggestion{
			Category:            "security",
			Priority:            schemas.PriorityHigh,
			Impact:              0.8,
			Effort:              0.5,
			Description:         "Close outstanding dependency advisories",
			ExpectedImprovement: "security score above 0.8",
			Implementation:      []string{"run dependency audit", "upgrade flagged packages"},
		})
	}
	return base
}

// handleGenerateInsights composes the most recent KPI analysis, trend
// predictions and top ranked suggestions into one summary. Pure aggregation:
// no new computation happens here.
func (a *Agent) handleGenerateInsights(_ context.Context, _ agent.Action) (interface{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	top := a.cfg.TopActions
	if top <= 0 {
		top = 5
	}
	if top > len(a.suggestions) {
		top = len(a.suggestions)
	}

	summary := schemas.InsightSummary{
		Analysis:    a.analysis,
		Predictions: append([]schemas.TrendPrediction(nil), a.predictions...),
		TopActions:  append([]schemas.OptimizationSuggestion(nil), a.suggestions[:top]...),
		GeneratedAt: time.Now().UTC(),
	}
	return summary, nil
}
