package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteeleParker/bsync"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Record(Entry{
		SequenceID: "run-1",
		Data:       map[string]any{"a": 1.0},
		Duration:   250 * time.Millisecond,
	}))
	require.NoError(t, j.Record(Entry{
		SequenceID: "run-2",
		Error:      "boom",
		Duration:   10 * time.Millisecond,
	}))

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "run-2", entries[0].SequenceID)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, "run-1", entries[1].SequenceID)
	assert.Equal(t, map[string]any{"a": 1.0}, entries[1].Data)
	assert.Equal(t, 250*time.Millisecond, entries[1].Duration)
	assert.False(t, entries[1].RecordedAt.IsZero())
}

func TestRecentHonorsLimit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(Entry{SequenceID: "run"}))
	}

	entries, err := j.Recent(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestObserverRecordsCompletedRuns(t *testing.T) {
	j := openTestJournal(t)

	boom := errors.New("stage failed")
	seq := bsync.New(bsync.RunConfig{
		Stages: []bsync.Stage{
			bsync.NewStage(func(ctx *bsync.TaskContext, complete bsync.CompleteFunc) {
				complete(nil, map[string]any{"out": "ok"})
			}),
			bsync.NewStage(func(ctx *bsync.TaskContext, complete bsync.CompleteFunc) {
				complete(boom, nil)
			}),
		},
	}, bsync.WithObserver(j.Observer(nil)))
	seq.Go()

	entries, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, seq.ID, entries[0].SequenceID)
	assert.Equal(t, "stage failed", entries[0].Error)
	assert.Equal(t, map[string]any{"out": "ok"}, entries[0].Data)
}
