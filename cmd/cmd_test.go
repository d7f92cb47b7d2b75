package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/internal/agent"
	"github.com/custodian-sh/custodian/internal/config"
)

// fakeExecutor records the actions it is asked to run and can be scripted to
// fail specific action types.
type fakeExecutor struct {
	mu        sync.Mutex
	name      string
	actions   []agent.ActionType
	failTypes map[agent.ActionType]bool
}

func (f *fakeExecutor) Name() string { return f.name }

func (f *fakeExecutor) Execute(_ context.Context, action agent.Action) agent.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action.Type)
	status := agent.StatusSuccess
	if f.failTypes[action.Type] {
		status = agent.StatusFailed
	}
	return agent.Result{ActionID: action.ID, ActionType: action.Type, Status: status}
}

func (f *fakeExecutor) executed() []agent.ActionType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agent.ActionType, len(f.actions))
	copy(out, f.actions)
	return out
}

func TestRunCyclesExecutesScheduleInOrder(t *testing.T) {
	ex := &fakeExecutor{name: "fake"}
	schedules := []schedule{
		{ex, []agent.ActionType{"first", "second"}},
	}

	err := runCycles(context.Background(), zap.NewNop(), schedules, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []agent.ActionType{"first", "second", "first", "second"}, ex.executed())
}

func TestRunCyclesContinuesPastFailures(t *testing.T) {
	// A schedule whose first action fails must still run the rest.
	ex := &fakeExecutor{name: "fake", failTypes: map[agent.ActionType]bool{"broken": true}}
	schedules := []schedule{
		{ex, []agent.ActionType{"broken", "after"}},
	}

	err := runCycles(context.Background(), zap.NewNop(), schedules, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []agent.ActionType{"broken", "after"}, ex.executed())
}

func TestRunCyclesRunsSchedulesConcurrently(t *testing.T) {
	a := &fakeExecutor{name: "a"}
	b := &fakeExecutor{name: "b"}
	schedules := []schedule{
		{a, []agent.ActionType{"one"}},
		{b, []agent.ActionType{"two"}},
	}

	err := runCycles(context.Background(), zap.NewNop(), schedules, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []agent.ActionType{"one"}, a.executed())
	assert.Equal(t, []agent.ActionType{"two"}, b.executed())
}

func TestRunCyclesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &fakeExecutor{name: "fake"}
	err := runCycles(ctx, zap.NewNop(), []schedule{{ex, []agent.ActionType{"never"}}}, 0, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, ex.executed())
}

func TestBuildRecorderBackends(t *testing.T) {
	cfg := config.NewDefaultConfig()

	rec, cleanup, err := buildRecorder(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	assert.NotNil(t, rec)

	cfg.Learning.Backend = "postgres"
	cfg.Database.URL = ""
	_, _, err = buildRecorder(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err, "postgres backend without a URL is a config error")
}

func TestBuildSinkDefaultsToThrottledLog(t *testing.T) {
	cfg := config.NewDefaultConfig()

	sink, cleanup, err := buildSink(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	assert.NotNil(t, sink)
}
