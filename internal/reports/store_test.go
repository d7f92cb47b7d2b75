package reports

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodian-sh/custodian/api/schemas"
)

func newReport(score float64, at time.Time) schemas.EthicsReport {
	return schemas.EthicsReport{
		ID:          uuid.New().String(),
		GeneratedAt: at,
		Score:       score,
		Summary:     "test report",
	}
}

func TestFileStoreSaveAndLatest(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(newReport(0.7, base)))
	require.NoError(t, store.Save(newReport(0.9, base.Add(time.Hour))))

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.InDelta(t, 0.9, latest.Score, 1e-9, "latest must be the newest report")
}

func TestFileStoreSaveShortID(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	report := newReport(0.5, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	report.ID = "r1"
	require.NoError(t, store.Save(report))

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "r1", latest.ID)
}

func TestFileStoreLatestEmptyDir(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = store.Latest()
	assert.Error(t, err)
}
