// Package alerts implements the issue/alert sink the agents notify on
// critical findings. Delivery is best effort: a sink failure is logged and
// never affects the correctness of the action that raised the alert.
package alerts

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/custodian-sh/custodian/api/schemas"
)

// Sink receives best-effort notifications.
type Sink interface {
	Send(ctx context.Context, alert schemas.Alert) error
}

// LogSink writes alerts to the structured log. It is the fallback backend and
// the floor every other backend degrades to.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("alerts")}
}

// Send implements Sink.
func (s *LogSink) Send(_ context.Context, alert schemas.Alert) error {
	s.logger.Warn("ALERT",
		zap.String("alert_id", alert.ID),
		zap.String("source", alert.Source),
		zap.String("severity", string(alert.Severity)),
		zap.String("title", alert.Title),
		zap.String("body", alert.Body),
	)
	return nil
}

// ThrottledSink caps the outbound alert rate. Alerts beyond the budget are
// dropped (with a log line), not queued: an alert storm must not block the
// agents that raise them.
type ThrottledSink struct {
	inner   Sink
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewThrottledSink wraps inner with a per-minute rate budget.
func NewThrottledSink(inner Sink, perMinute, burst int, logger *zap.Logger) *ThrottledSink {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledSink{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		logger:  logger.Named("alerts"),
	}
}

// Send implements Sink.
func (s *ThrottledSink) Send(ctx context.Context, alert schemas.Alert) error {
	if !s.limiter.Allow() {
		s.logger.Warn("Alert dropped: rate budget exhausted.",
			zap.String("alert_id", alert.ID),
			zap.String("title", alert.Title),
		)
		return nil
	}
	return s.inner.Send(ctx, alert)
}
