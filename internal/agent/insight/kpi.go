package insight

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
	"github.com/custodian-sh/custodian/internal/config"
)

// metricWeights are the fixed per-metric weights of the overall score. They
// sum to 1.
var metricWeights = map[string]float64{
	"user_engagement": 0.20,
	"conversion_rate": 0.20,
	"page_load_time":  0.15,
	"error_rate":      0.20,
	"cost_efficiency": 0.10,
	"security_score":  0.15,
}

// metricValue extracts one named metric from a snapshot.
func metricValue(m schemas.KPIMetrics, name string) float64 {
	switch name {
	case "user_engagement":
		return m.UserEngagement
	case "conversion_rate":
		return m.ConversionRate
	case "page_load_time":
		return m.PageLoadTime
	case "error_rate":
		return m.ErrorRate
	case "cost_efficiency":
		return m.CostEfficiency
	case "security_score":
		return m.SecurityScore
	default:
		return 0
	}
}

// metricNames is the canonical iteration order for metric maps.
var metricNames = []string{
	"user_engagement",
	"conversion_rate",
	"page_load_time",
	"error_rate",
	"cost_efficiency",
	"security_score",
}

// scoreContribution normalizes one metric to a 0..1 "higher is better"
// scale. Page load is scored against a 10s worst case; error rate against a
// 10% worst case.
func scoreContribution(name string, value float64) float64 {
	var v float64
	switch name {
	case "page_load_time":
		v = 1 - value/10
	case "error_rate":
		v = 1 - value/0.1
	default:
		v = value
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// handleAnalyzeKPIs appends the submitted snapshot to the bounded window,
// computes the weighted overall score and per-metric trends versus the
// previous snapshot, and raises threshold alerts from configuration.
func (a *Agent) handleAnalyzeKPIs(_ context.Context, action agent.Action) (interface{}, error) {
	metrics, err := metricsFromPayload(action.Payload)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, agent.ErrInvalidParameters)
	}

	snapshot := schemas.KPISnapshot{Metrics: metrics, Timestamp: time.Now().UTC()}

	a.mu.Lock()
	var previous *schemas.KPISnapshot
	if n := len(a.history); n > 0 {
		prev := a.history[n-1]
		previous = &prev
	}
	a.history = append(a.history, snapshot)
	window := a.cfg.WindowSize
	if window <= 0 {
		window = 30
	}
	if len(a.history) > window {
		a.history = a.history[len(a.history)-window:]
	}
	windowLen := len(a.history)
	a.mu.Unlock()

	analysis := schemas.KPIAnalysis{
		Score:     overallScore(metrics),
		Trends:    trendsAgainst(previous, metrics),
		Alerts:    thresholdAlerts(a.cfg.Thresholds, metrics),
		Snapshot:  snapshot,
		WindowLen: windowLen,
	}

	a.mu.Lock()
	a.analysis = &analysis
	a.mu.Unlock()

	a.logger.Info("KPI analysis completed.",
		zap.Float64("score", analysis.Score),
		zap.Int("alerts", len(analysis.Alerts)),
		zap.Int("window", windowLen),
	)
	return analysis, nil
}

func metricsFromPayload(payload map[string]interface{}) (schemas.KPIMetrics, error) {
	raw, ok := payload["metrics"].(map[string]interface{})
	if !ok {
		return schemas.KPIMetrics{}, fmt.Errorf("payload requires a metrics object")
	}
	num := func(key string) float64 {
		switch v := raw[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		default:
			return 0
		}
	}
	return schemas.KPIMetrics{
		UserEngagement: num("user_engagement"),
		ConversionRate: num("conversion_rate"),
		PageLoadTime:   num("page_load_time"),
		ErrorRate:      num("error_rate"),
		CostEfficiency: num("cost_efficiency"),
		SecurityScore:  num("security_score"),
	}, nil
}

func overallScore(m schemas.KPIMetrics) float64 {
	score := 0.0
	for name, weight := range metricWeights {
		score += weight * scoreContribution(name, metricValue(m, name))
	}
	return score
}

// trendsAgainst computes the percent delta of each metric versus the
// immediately preceding snapshot. Nil when there is no previous snapshot;
// a metric with a zero previous value has no defined trend.
func trendsAgainst(previous *schemas.KPISnapshot, current schemas.KPIMetrics) map[string]float64 {
	if previous == nil {
		return nil
	}
	trends := make(map[string]float64)
	for _, name := range metricNames {
		prev := metricValue(previous.Metrics, name)
		if prev == 0 {
			continue
		}
		cur := metricValue(current, name)
		trends[name] = (cur - prev) / prev * 100
	}
	return trends
}

func thresholdAlerts(t config.KPIThresholds, m schemas.KPIMetrics) []schemas.KPIAlert {
	var alerts []schemas.KPIAlert

	ceiling := func(metric string, value, warn, crit float64) {
		switch {
		case crit > 0 && value >= crit:
			alerts = append(alerts, schemas.KPIAlert{
				Metric: metric, Level: schemas.KPIAlertCritical, Value: value, Limit: crit,
				Message: fmt.Sprintf("%s %.3f breached critical ceiling %.3f", metric, value, crit),
			})
		case warn > 0 && value >= warn:
			alerts = append(alerts, schemas.KPIAlert{
				Metric: metric, Level: schemas.KPIAlertWarning, Value: value, Limit: warn,
				Message: fmt.Sprintf("%s %.3f breached warning ceiling %.3f", metric, value, warn),
			})
		}
	}
	floor := func(metric string, value, warn, crit float64) {
		switch {
		case crit > 0 && value <= crit:
			alerts = append(alerts, schemas.KPIAlert{
				Metric: metric, Level: schemas.KPIAlertCritical, Value: value, Limit: crit,
				Message: fmt.Sprintf("%s %.3f fell below critical floor %.3f", metric, value, crit),
			})
		case warn > 0 && value <= warn:
			alerts = append(alerts, schemas.KPIAlert{
				Metric: metric, Level: schemas.KPIAlertWarning, Value: value, Limit: warn,
				Message: fmt.Sprintf("%s %.3f fell below warning floor %.3f", metric, value, warn),
			})
		}
	}

	ceiling("error_rate", m.ErrorRate, t.ErrorRateWarning, t.ErrorRateCritical)
	ceiling("page_load_time", m.PageLoadTime, t.PageLoadWarning, t.PageLoadCritical)
	floor("security_score", m.SecurityScore, t.SecurityScoreWarning, t.SecurityScoreCritical)
	return alerts
}
