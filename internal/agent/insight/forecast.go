package insight

import (
	"context"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
)

// minTrendPoints is the smallest history a regression is willing to fit.
const minTrendPoints = 3

// handlePredict extrapolates each metric over the retained history by least
// squares linear regression, for a caller-specified horizon. Fewer than three
// data points yields an empty prediction set: insufficient data is a
// documented empty result, not an error and not a fabricated number.
func (a *Agent) handlePredict(_ context.Context, action agent.Action) (interface{}, error) {
	horizon := intFromPayload(action.Payload, "horizon", 5)
	if horizon < 1 {
		horizon = 1
	}
	only, _ := action.String("metric")

	a.mu.Lock()
	history := append([]schemas.KPISnapshot(nil), a.history...)
	a.mu.Unlock()

	if len(history) < minTrendPoints {
		a.logger.Info("Trend prediction skipped: insufficient history.",
			zap.Int("points", len(history)),
			zap.Int("required", minTrendPoints),
		)
		a.mu.Lock()
		a.predictions = nil
		a.mu.Unlock()
		return []schemas.TrendPrediction{}, nil
	}

	var predictions []schemas.TrendPrediction
	for _, name := range metricNames {
		if only != "" && only != name {
			continue
		}
		series := make([]float64, len(history))
		for i, snap := range history {
			series[i] = metricValue(snap.Metrics, name)
		}
		predictions = append(predictions, forecast(name, series, horizon))
	}

	a.mu.Lock()
	a.predictions = predictions
	a.mu.Unlock()
	return predictions, nil
}

// forecast fits y = slope*x + intercept over the series and extrapolates the
// next horizon points. Confidence is the fit's R².
func forecast(name string, series []float64, horizon int) schemas.TrendPrediction {
	n := float64(len(series))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	var slope, intercept float64
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / n
	} else {
		intercept = sumY / n
	}

	predicted := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		predicted[h] = slope*float64(len(series)+h) + intercept
	}

	return schemas.TrendPrediction{
		Metric:     name,
		Horizon:    horizon,
		Current:    series[len(series)-1],
		Predicted:  predicted,
		Slope:      slope,
		Confidence: rSquared(series, slope, intercept),
	}
}

func rSquared(series []float64, slope, intercept float64) float64 {
	mean := 0.0
	for _, y := range series {
		mean += y
	}
	mean /= float64(len(series))

	var ssRes, ssTot float64
	for i, y := range series {
		fit := slope*float64(i) + intercept
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot == 0 {
		// A flat series is predicted perfectly by its own mean.
		return 1
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}

func intFromPayload(payload map[string]interface{}, key string, fallback int) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
