// Package learning implements the append-only learning/metrics store the
// agents write action outcomes to. The interface is write-only by design:
// downstream analysis consumes the records, the execution core never reads
// them back.
package learning

import (
	"context"
	"sync"

	"github.com/custodian-sh/custodian/api/schemas"
)

// MemoryRecorder keeps the most recent records in a bounded in-memory ring.
// It backs tests and deployments without a database.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []schemas.LearningRecord
	limit   int
}

// NewMemoryRecorder builds a recorder retaining at most limit records.
func NewMemoryRecorder(limit int) *MemoryRecorder {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryRecorder{limit: limit}
}

// Record appends one record, evicting the oldest past the retention limit.
func (m *MemoryRecorder) Record(_ context.Context, rec schemas.LearningRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if len(m.records) > m.limit {
		m.records = m.records[len(m.records)-m.limit:]
	}
	return nil
}

// Records returns a snapshot of the retained records.
func (m *MemoryRecorder) Records() []schemas.LearningRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.LearningRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Len reports how many records are currently retained.
func (m *MemoryRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
