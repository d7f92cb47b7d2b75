package agent

import (
	"os"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"

	"github.com/custodian-sh/custodian/internal/config"
	"github.com/custodian-sh/custodian/internal/observability"
)

// TestMain initializes the logger used by the package tests and verifies no
// goroutines leak across the suite.
func TestMain(m *testing.M) {
	logCfg := config.NewDefaultConfig().Logger
	logCfg.Level = "debug"
	logCfg.ServiceName = "agent-test"
	logCfg.LogFile = ""
	observability.Initialize(logCfg, zapcore.Lock(os.Stdout))

	goleak.VerifyTestMain(m)
}
