package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/polkapulse/vault/internal/testing"
)

func newTestHistory(t *testing.T) (*History, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	return NewHistory(db.Conn(), zerolog.Nop()), cleanup
}

func TestHistory_RecordLifecycle(t *testing.T) {
	history, cleanup := newTestHistory(t)
	defer cleanup()

	start := time.Now()
	id, err := history.RecordStart("harvest_probe", start)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	require.NoError(t, history.RecordResult(id, start, nil))

	runs, err := history.RecentRuns("harvest_probe", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "harvest_probe", runs[0].JobName)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Empty(t, runs[0].Message)
	assert.Equal(t, start.Unix(), runs[0].StartedAt)
	assert.GreaterOrEqual(t, runs[0].DurationMs, int64(0))
}

func TestHistory_RecordFailure(t *testing.T) {
	history, cleanup := newTestHistory(t)
	defer cleanup()

	start := time.Now()
	id, err := history.RecordStart("epoch_probe", start)
	require.NoError(t, err)

	require.NoError(t, history.RecordResult(id, start, errors.New("venue unreachable")))

	runs, err := history.RecentRuns("epoch_probe", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Contains(t, runs[0].Message, "venue unreachable")
}

func TestHistory_RecentRunsOrderAndFilter(t *testing.T) {
	history, cleanup := newTestHistory(t)
	defer cleanup()

	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-1 * time.Hour)

	_, err := history.RecordStart("telemetry_poll", older)
	require.NoError(t, err)
	_, err = history.RecordStart("telemetry_poll", newer)
	require.NoError(t, err)
	_, err = history.RecordStart("retention", newer)
	require.NoError(t, err)

	runs, err := history.RecentRuns("telemetry_poll", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.Unix(), runs[0].StartedAt)
	assert.Equal(t, older.Unix(), runs[1].StartedAt)

	limited, err := history.RecentRuns("telemetry_poll", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestHistory_StatsAndPrune(t *testing.T) {
	history, cleanup := newTestHistory(t)
	defer cleanup()

	// One run well outside the retention window, one fresh.
	aged := time.Now().AddDate(0, 0, -historyRetentionDays-7)
	_, err := history.RecordStart("retention", aged)
	require.NoError(t, err)
	_, err = history.RecordStart("retention", time.Now())
	require.NoError(t, err)

	stats, err := history.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.JobHistory.Entries)
	assert.Equal(t, 0, stats.JobHistory.Pruned)

	pruned, err := history.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	stats, err = history.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.JobHistory.Entries)
	assert.Equal(t, 1, stats.JobHistory.Pruned)
}
