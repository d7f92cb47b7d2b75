package learning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodian-sh/custodian/api/schemas"
)

func record(i int) schemas.LearningRecord {
	return schemas.LearningRecord{
		ID:        fmt.Sprintf("rec-%d", i),
		Agent:     "test",
		Category:  "action_outcome",
		Payload:   map[string]interface{}{"n": i},
		Timestamp: time.Now().UTC(),
	}
}

func TestMemoryRecorderAppends(t *testing.T) {
	m := NewMemoryRecorder(10)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Record(context.Background(), record(i)))
	}

	recs := m.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "rec-0", recs[0].ID)
	assert.Equal(t, "rec-2", recs[2].ID)
}

func TestMemoryRecorderEvictsOldest(t *testing.T) {
	m := NewMemoryRecorder(5)

	for i := 0; i < 12; i++ {
		require.NoError(t, m.Record(context.Background(), record(i)))
	}

	recs := m.Records()
	require.Len(t, recs, 5)
	assert.Equal(t, "rec-7", recs[0].ID, "oldest records are evicted first")
	assert.Equal(t, "rec-11", recs[4].ID)
}

func TestMemoryRecorderSnapshotIsDetached(t *testing.T) {
	m := NewMemoryRecorder(10)
	require.NoError(t, m.Record(context.Background(), record(0)))

	snap := m.Records()
	snap[0].ID = "mutated"

	assert.Equal(t, "rec-0", m.Records()[0].ID)
}
