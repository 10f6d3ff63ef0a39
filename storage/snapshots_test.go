package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voting-workflow/events"
	"voting-workflow/models"
)

func TestSnapshotArchiveKeepsLatest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	archive, err := NewSnapshotArchive(dir, 2, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, ok, err := archive.LoadLatest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	archive.now = func() time.Time { return now }
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, archive.SaveSnapshot(ctx, models.Snapshot{EntryCount: i, Phase: models.RegisteringVoters}))
		now = now.Add(time.Second)
	}

	files, err := filepath.Glob(filepath.Join(dir, snapshotPattern))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	latest, ok, err := archive.LoadLatest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), latest.EntryCount)
}

type countingSource struct {
	entries uint64
}

func (s *countingSource) Snapshot() models.Snapshot {
	return models.Snapshot{EntryCount: s.entries}
}

type recordingWriter struct {
	saved []models.Snapshot
}

func (w *recordingWriter) SaveSnapshot(_ context.Context, s models.Snapshot) error {
	w.saved = append(w.saved, s)
	return nil
}

func TestCheckpointerSkipsUnchangedState(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{entries: 3}
	writer := &recordingWriter{}
	cp := NewCheckpointer(source, zaptest.NewLogger(t), writer)

	require.NoError(t, cp.Checkpoint(ctx, false))
	require.NoError(t, cp.Checkpoint(ctx, false))
	assert.Len(t, writer.saved, 1)

	require.NoError(t, cp.Checkpoint(ctx, true))
	assert.Len(t, writer.saved, 2)

	source.entries = 5
	require.NoError(t, cp.Stop(ctx))
	require.Len(t, writer.saved, 3)
	assert.Equal(t, uint64(5), writer.saved[2].EntryCount)
}

func TestCheckpointerFollowsJournal(t *testing.T) {
	ctx := context.Background()
	entries := sampleEntries()
	source := &countingSource{entries: uint64(len(entries))}
	writer := &recordingWriter{}
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	journal := NewJournalWriter(store, 0, time.Second, zaptest.NewLogger(t))

	cp := NewCheckpointer(source, zaptest.NewLogger(t), writer)
	cp.FollowJournal(journal)

	for _, e := range entries {
		journal.Write(e)
	}
	require.NoError(t, cp.Checkpoint(ctx, false))
	require.Len(t, writer.saved, 1)

	// An entry that never reaches the journal blocks every later snapshot.
	source.entries++
	journal.Missed(events.Entry{Index: uint64(len(entries))})
	err = cp.Checkpoint(ctx, false)
	assert.ErrorIs(t, err, ErrJournalFailed)
	assert.Len(t, writer.saved, 1)
}

func TestCheckpointerRejectsBadSchedule(t *testing.T) {
	cp := NewCheckpointer(&countingSource{}, nil)
	assert.ErrorContains(t, cp.Start("every now and then"), "invalid checkpoint schedule")
}
