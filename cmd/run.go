package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodian-sh/custodian/internal/agent"
	"github.com/custodian-sh/custodian/internal/agent/ethics"
	"github.com/custodian-sh/custodian/internal/agent/heal"
	"github.com/custodian-sh/custodian/internal/agent/insight"
	"github.com/custodian-sh/custodian/internal/alerts"
	"github.com/custodian-sh/custodian/internal/config"
	"github.com/custodian-sh/custodian/internal/learning"
	"github.com/custodian-sh/custodian/internal/observability"
	"github.com/custodian-sh/custodian/internal/reports"
	"github.com/custodian-sh/custodian/internal/runner"
)

// executor is the slice of an agent the run loop needs.
type executor interface {
	Name() string
	Execute(ctx context.Context, action agent.Action) agent.Result
}

// schedule is one agent's ordered action sequence within an oversight cycle.
// The three schedules run concurrently; actions inside one schedule run in
// order because later steps depend on earlier state (a repair needs its scan).
type schedule struct {
	agent   executor
	actions []agent.ActionType
}

// newRunCmd creates the run command: it constructs the three agents and
// drives them through periodic oversight cycles until the cycle budget is
// spent or the process receives an interrupt.
func newRunCmd() *cobra.Command {
	var (
		cycles   int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the heal, insight, and ethics agents through oversight cycles.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := observability.GetLogger()

			recorder, cleanup, err := buildRecorder(ctx, appCfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			sink, sinkCleanup, err := buildSink(appCfg, logger)
			if err != nil {
				return err
			}
			defer sinkCleanup()

			store, err := reports.NewFileStore(appCfg.Reports.Dir, logger)
			if err != nil {
				return err
			}

			run := runner.NewShellRunner(logger, appCfg.Agents.Heal.ProjectRoot)

			healAgent, err := heal.New(appCfg.Agents.Heal, logger, recorder, run)
			if err != nil {
				return fmt.Errorf("failed to build heal agent: %w", err)
			}
			insightAgent, err := insight.New(appCfg.Agents.Insight, logger, recorder)
			if err != nil {
				return fmt.Errorf("failed to build insight agent: %w", err)
			}
			ethicsAgent, err := ethics.New(appCfg.Agents.Ethics, logger, recorder, sink, store)
			if err != nil {
				return fmt.Errorf("failed to build ethics agent: %w", err)
			}

			schedules := cycleSchedules(healAgent, insightAgent, ethicsAgent)
			return runCycles(ctx, logger, schedules, cycles, interval)
		},
	}

	cmd.Flags().IntVar(&cycles, "cycles", 1, "number of oversight cycles to run (0 runs until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "pause between cycles")

	return cmd
}

// cycleSchedules is the fixed work of one oversight cycle. Within the heal
// schedule the repairs follow their scan and validation follows the repairs;
// the ethics schedule closes with the persisted report.
func cycleSchedules(h *heal.Agent, i *insight.Agent, e *ethics.Agent) []schedule {
	return []schedule{
		{h, []agent.ActionType{
			heal.ActionScanCode,
			heal.ActionFixErrors,
			heal.ActionFixWarnings,
			heal.ActionFixSecurityIssues,
			heal.ActionValidateFixes,
		}},
		{i, []agent.ActionType{
			insight.ActionAnalyzeKPIs,
			insight.ActionPredictTrends,
			insight.ActionGenerateInsights,
		}},
		{e, []agent.ActionType{
			ethics.ActionSimulateThreats,
			ethics.ActionCheckCompliance,
			ethics.ActionGenerateReport,
		}},
	}
}

// runCycles drives the schedules, all agents in parallel per cycle. A failed
// or denied action is an outcome to report, not a reason to stop the cycle;
// only context cancellation ends the loop early.
func runCycles(ctx context.Context, logger *zap.Logger, schedules []schedule, cycles int, interval time.Duration) error {
	for n := 1; cycles == 0 || n <= cycles; n++ {
		if ctx.Err() != nil {
			logger.Info("Shutdown requested.")
			return nil
		}
		logger.Info("Oversight cycle starting.", zap.Int("cycle", n))

		g, gctx := errgroup.WithContext(ctx)
		for _, s := range schedules {
			s := s
			g.Go(func() error {
				for _, actionType := range s.actions {
					if gctx.Err() != nil {
						return nil
					}
					res := s.agent.Execute(gctx, agent.NewAction(actionType, nil))
					logger.Info("Cycle step finished.",
						zap.String("agent", s.agent.Name()),
						zap.String("action", string(actionType)),
						zap.String("status", string(res.Status)),
						zap.Int("attempts", res.Attempts),
					)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if cycles != 0 && n == cycles {
			break
		}
		select {
		case <-ctx.Done():
			logger.Info("Shutdown requested.")
			return nil
		case <-time.After(interval):
		}
	}
	logger.Info("Oversight cycles completed.")
	return nil
}

// buildRecorder selects the learning store backend.
func buildRecorder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (agent.Recorder, func(), error) {
	if cfg.Learning.Backend == "postgres" {
		if cfg.Database.URL == "" {
			return nil, nil, fmt.Errorf("learning backend is postgres but database.url is empty")
		}
		rec, err := learning.NewPostgresRecorder(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build postgres recorder: %w", err)
		}
		return rec, rec.Close, nil
	}
	return learning.NewMemoryRecorder(cfg.Learning.BufferSize), func() {}, nil
}

// buildSink selects the alert sink backend and wraps it in the outbound
// throttle.
func buildSink(cfg *config.Config, logger *zap.Logger) (alerts.Sink, func(), error) {
	var (
		inner   alerts.Sink
		cleanup = func() {}
	)
	if cfg.Alerts.Backend == "nats" {
		ns, err := alerts.NewNATSSink(cfg.Alerts.URL, cfg.Alerts.Subject, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect alert sink: %w", err)
		}
		inner = ns
		cleanup = ns.Close
	} else {
		inner = alerts.NewLogSink(logger)
	}
	return alerts.NewThrottledSink(inner, cfg.Alerts.RatePerMinute, cfg.Alerts.Burst, logger), cleanup, nil
}
