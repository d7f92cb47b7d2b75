package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Learning LearningConfig `mapstructure:"learning" yaml:"learning"`
	Alerts   AlertsConfig   `mapstructure:"alerts" yaml:"alerts"`
	Reports  ReportsConfig  `mapstructure:"reports" yaml:"reports"`
	Agents   AgentsConfig   `mapstructure:"agents" yaml:"agents"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// LearningConfig selects and tunes the learning/metrics store backend.
type LearningConfig struct {
	// Backend is "postgres" or "memory".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// BufferSize bounds the in-memory backend's record ring.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// AlertsConfig selects and tunes the issue/alert sink.
type AlertsConfig struct {
	// Backend is "nats" or "log".
	Backend string `mapstructure:"backend" yaml:"backend"`
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
	// RatePerMinute and Burst throttle outbound alerts; the sink is
	// best-effort and drops beyond the budget rather than blocking.
	RatePerMinute int `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	Burst         int `mapstructure:"burst" yaml:"burst"`
}

// ReportsConfig tunes the report/document store.
type ReportsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// AgentsConfig is a container for the per-agent configurations.
type AgentsConfig struct {
	Heal    HealConfig    `mapstructure:"heal" yaml:"heal"`
	Insight InsightConfig `mapstructure:"insight" yaml:"insight"`
	Ethics  EthicsConfig  `mapstructure:"ethics" yaml:"ethics"`
}

// RuntimeConfig holds the execution-loop tunables shared by every agent.
type RuntimeConfig struct {
	MaxRetries    int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	LearningRate  float64       `mapstructure:"learning_rate" yaml:"learning_rate"`
	HistorySize   int           `mapstructure:"history_size" yaml:"history_size"`
}

// HealConfig tunes the code-repair agent.
type HealConfig struct {
	Runtime          RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
	ProjectRoot      string        `mapstructure:"project_root" yaml:"project_root"`
	LintCommand      string        `mapstructure:"lint_command" yaml:"lint_command"`
	TypecheckCommand string        `mapstructure:"typecheck_command" yaml:"typecheck_command"`
	AuditCommand     string        `mapstructure:"audit_command" yaml:"audit_command"`
	TestCommand      string        `mapstructure:"test_command" yaml:"test_command"`
}

// KPIThresholds are the alerting ceilings/floors for KPI analysis. These are
// policy knobs, not business logic, so they live in configuration.
type KPIThresholds struct {
	ErrorRateWarning      float64 `mapstructure:"error_rate_warning" yaml:"error_rate_warning"`
	ErrorRateCritical     float64 `mapstructure:"error_rate_critical" yaml:"error_rate_critical"`
	PageLoadWarning       float64 `mapstructure:"page_load_warning" yaml:"page_load_warning"`
	PageLoadCritical      float64 `mapstructure:"page_load_critical" yaml:"page_load_critical"`
	SecurityScoreWarning  float64 `mapstructure:"security_score_warning" yaml:"security_score_warning"`
	SecurityScoreCritical float64 `mapstructure:"security_score_critical" yaml:"security_score_critical"`
}

// InsightConfig tunes the KPI/insight agent.
type InsightConfig struct {
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
	// WindowSize bounds the retained KPI snapshot history.
	WindowSize int           `mapstructure:"window_size" yaml:"window_size"`
	Thresholds KPIThresholds `mapstructure:"thresholds" yaml:"thresholds"`
	// TopActions caps how many ranked suggestions generate_insights includes.
	TopActions int `mapstructure:"top_actions" yaml:"top_actions"`
}

// EthicsConfig tunes the safety/compliance agent.
type EthicsConfig struct {
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
	// ComplianceRecheck is how far out NextCheck is scheduled after a run.
	ComplianceRecheck time.Duration `mapstructure:"compliance_recheck" yaml:"compliance_recheck"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "custodian")
	v.SetDefault("logger.log_file", "custodian.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database / learning store --
	v.SetDefault("database.url", "")
	v.SetDefault("learning.backend", "memory")
	v.SetDefault("learning.buffer_size", 1000)

	// -- Alerts --
	v.SetDefault("alerts.backend", "log")
	v.SetDefault("alerts.url", "nats://127.0.0.1:4222")
	v.SetDefault("alerts.subject", "custodian.alerts")
	v.SetDefault("alerts.rate_per_minute", 60)
	v.SetDefault("alerts.burst", 10)

	// -- Reports --
	v.SetDefault("reports.dir", "reports")

	// -- Agent runtimes --
	for _, agent := range []string{"heal", "insight", "ethics"} {
		v.SetDefault("agents."+agent+".runtime.max_retries", 3)
		v.SetDefault("agents."+agent+".runtime.retry_delay", "2s")
		v.SetDefault("agents."+agent+".runtime.action_timeout", "2m")
		v.SetDefault("agents."+agent+".runtime.learning_rate", 0.1)
		v.SetDefault("agents."+agent+".runtime.history_size", 100)
	}

	// -- Heal --
	v.SetDefault("agents.heal.project_root", ".")
	v.SetDefault("agents.heal.lint_command", "npm run lint -- --format json")
	v.SetDefault("agents.heal.typecheck_command", "npx tsc --noEmit")
	v.SetDefault("agents.heal.audit_command", "npm audit --json")
	v.SetDefault("agents.heal.test_command", "npm test")

	// -- Insight --
	v.SetDefault("agents.insight.window_size", 30)
	v.SetDefault("agents.insight.top_actions", 5)
	v.SetDefault("agents.insight.thresholds.error_rate_warning", 0.02)
	v.SetDefault("agents.insight.thresholds.error_rate_critical", 0.05)
	v.SetDefault("agents.insight.thresholds.page_load_warning", 2.0)
	v.SetDefault("agents.insight.thresholds.page_load_critical", 4.0)
	v.SetDefault("agents.insight.thresholds.security_score_warning", 0.8)
	v.SetDefault("agents.insight.thresholds.security_score_critical", 0.6)

	// -- Ethics --
	v.SetDefault("agents.ethics.compliance_recheck", "720h")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from the given file (optional) plus CUSTODIAN_*
// environment variables, layered over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("CUSTODIAN")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("custodian")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config file is fine; anything else is not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
