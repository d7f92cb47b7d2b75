// Package insight implements the KPI/insight agent: it maintains a bounded
// window of KPI snapshots, scores and trends them, forecasts by linear
// regression, and ranks optimization suggestions by leverage.
package insight

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
	"github.com/custodian-sh/custodian/internal/agent"
	"github.com/custodian-sh/custodian/internal/config"
)

// AgentName identifies the agent in logs and learning records.
const AgentName = "insight"

// The agent's closed action vocabulary.
const (
	ActionAnalyzeKPIs         agent.ActionType = "analyze_kpis"
	ActionSuggestOptimize     agent.ActionType = "suggest_optimizations"
	ActionPredictTrends       agent.ActionType = "predict_trends"
	ActionAnalyzeUserBehavior agent.ActionType = "analyze_user_behavior"
	ActionAnalyzeCosts        agent.ActionType = "analyze_costs"
	ActionAnalyzePerformance  agent.ActionType = "analyze_performance"
	ActionAnalyzeSecurity     agent.ActionType = "analyze_security"
	ActionGenerateInsights    agent.ActionType = "generate_insights"
)

// DataSource is the read boundary to the platform's analytics domains. Each
// analyze_* action reads exactly one domain; domains have no
// cross-dependencies.
type DataSource interface {
	Fetch(ctx context.Context, domain string) (map[string]float64, error)
}

// Agent is the KPI/insight agent.
type Agent struct {
	*agent.Base

	cfg    config.InsightConfig
	logger *zap.Logger
	source DataSource

	mu          sync.Mutex
	history     []schemas.KPISnapshot
	analysis    *schemas.KPIAnalysis
	predictions []schemas.TrendPrediction
	suggestions []schemas.OptimizationSuggestion
}

// Option customizes agent construction.
type Option func(*Agent)

// WithDataSource replaces the default empty data source.
func WithDataSource(ds DataSource) Option {
	return func(a *Agent) { a.source = ds }
}

// New builds the insight agent with its capability set, safety constraints
// and handlers wired.
func New(cfg config.InsightConfig, logger *zap.Logger, recorder agent.Recorder, opts ...Option) (*Agent, error) {
	a := &Agent{
		cfg:    cfg,
		logger: logger.Named(AgentName),
		source: emptySource{},
	}
	for _, opt := range opts {
		opt(a)
	}

	base, err := agent.NewBase(agent.Config{
		Name: AgentName,
		Capabilities: []agent.ActionType{
			ActionAnalyzeKPIs,
			ActionSuggestOptimize,
			ActionPredictTrends,
			ActionAnalyzeUserBehavior,
			ActionAnalyzeCosts,
			ActionAnalyzePerformance,
			ActionAnalyzeSecurity,
			ActionGenerateInsights,
		},
		Constraints: []agent.Constraint{
			{
				// Behavioral analysis runs on aggregated data only; a
				// payload flagged as carrying raw user identifiers is
				// vetoed before any read happens.
				Name:      "aggregate_data_only",
				AppliesTo: []agent.ActionType{ActionAnalyzeUserBehavior},
				Check:     checkAggregateOnly,
			},
		},
		LearningRate:  cfg.Runtime.LearningRate,
		MaxRetries:    cfg.Runtime.MaxRetries,
		RetryDelay:    cfg.Runtime.RetryDelay,
		ActionTimeout: cfg.Runtime.ActionTimeout,
	}, logger, recorder)
	if err != nil {
		return nil, err
	}
	a.Base = base

	base.MustRegister(ActionAnalyzeKPIs, a.handleAnalyzeKPIs)
	base.MustRegister(ActionSuggestOptimize, a.handleSuggest)
	base.MustRegister(ActionPredictTrends, a.handlePredict)
	base.MustRegister(ActionAnalyzeUserBehavior, a.domainHandler("user_behavior"))
	base.MustRegister(ActionAnalyzeCosts, a.domainHandler("costs"))
	base.MustRegister(ActionAnalyzePerformance, a.domainHandler("performance"))
	base.MustRegister(ActionAnalyzeSecurity, a.domainHandler("security"))
	base.MustRegister(ActionGenerateInsights, a.handleGenerateInsights)

	return a, nil
}

func checkAggregateOnly(_ context.Context, action agent.Action) (bool, string) {
	if raw, ok := action.Payload["contains_user_identifiers"].(bool); ok && raw {
		return false, "behavioral analysis is restricted to aggregated, de-identified data"
	}
	return true, ""
}

// History returns a snapshot of the retained KPI window.
func (a *Agent) History() []schemas.KPISnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schemas.KPISnapshot, len(a.history))
	copy(out, a.history)
	return out
}

type emptySource struct{}

func (emptySource) Fetch(context.Context, string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

// domainHandler builds the read-and-summarize handler for one analytics
// domain.
func (a *Agent) domainHandler(domain string) agent.Handler {
	return func(ctx context.Context, _ agent.Action) (interface{}, error) {
		data, err := a.source.Fetch(ctx, domain)
		if err != nil {
			return nil, err
		}
		summary := map[string]interface{}{
			"domain":  domain,
			"metrics": data,
			"samples": len(data),
		}
		a.logger.Debug("Domain analysis completed.",
			zap.String("domain", domain),
			zap.Int("metrics", len(data)),
		)
		return summary, nil
	}
}
