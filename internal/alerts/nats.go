package alerts

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NATSSink publishes alerts as JSON messages on a NATS subject, for external
// ticketing/on-call consumers.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSSink connects to the NATS server and returns a sink publishing on
// subject.
func NewNATSSink(url, subject string, logger *zap.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("custodian-alerts"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSSink{conn: conn, subject: subject, logger: logger.Named("alerts")}, nil
}

// Send implements Sink.
func (s *NATSSink) Send(_ context.Context, alert schemas.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	s.logger.Debug("Alert published.",
		zap.String("alert_id", alert.ID),
		zap.String("subject", s.subject),
	)
	return nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() {
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn("Failed to drain NATS connection.", zap.Error(err))
	}
}
