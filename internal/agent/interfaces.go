package agent

import (
	"context"

	"github.com/custodian-sh/custodian/api/schemas"
)

// Handler performs the actual work for one action type. It returns an
// action-specific detail payload (RepairResult, []ComplianceCheck, ...) and
// an error when the attempt failed. Wrap errors with ErrValidation when the
// work applied but post-hoc validation rejected it, and with ErrNonRetryable
// when another attempt cannot help.
type Handler func(ctx context.Context, action Action) (interface{}, error)

// Recorder is the write-only learning/metrics store boundary. Recording is
// fire-and-forget: implementations should be fast, and the agent logs (never
// propagates) a recording failure.
type Recorder interface {
	Record(ctx context.Context, rec schemas.LearningRecord) error
}

// NopRecorder discards every record. Useful for tests and for agents running
// without a learning store.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, schemas.LearningRecord) error { return nil }
