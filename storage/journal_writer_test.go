package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voting-workflow/events"
	"voting-workflow/models"
	"voting-workflow/service"
)

// gatedJournal holds its first Append until release is closed.
type gatedJournal struct {
	Journal
	release chan struct{}
	held    bool
}

func (j *gatedJournal) Append(ctx context.Context, entry events.Entry) error {
	if !j.held {
		j.held = true
		<-j.release
	}
	return j.Journal.Append(ctx, entry)
}

type failingJournal struct {
	Journal
}

func (failingJournal) Append(context.Context, events.Entry) error {
	return errors.New("disk full")
}

func TestJournalWriterCommits(t *testing.T) {
	ctx := context.Background()
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	w := NewJournalWriter(store, 0, time.Second, zaptest.NewLogger(t))

	entries := sampleEntries()
	done := make(chan error, 1)
	go func() { done <- w.WaitFor(ctx, uint64(len(entries))) }()

	for _, e := range entries {
		w.Write(e)
	}
	require.NoError(t, <-done)
	assert.Equal(t, uint64(len(entries)), w.Committed())
	assert.NoError(t, w.Err())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)
}

func TestJournalWriterStopsOnAppendError(t *testing.T) {
	w := NewJournalWriter(failingJournal{}, 0, time.Second, zaptest.NewLogger(t))
	entries := sampleEntries()

	w.Write(entries[0])

	select {
	case <-w.Failed():
	default:
		t.Fatal("writer did not stop")
	}
	assert.ErrorIs(t, w.Err(), ErrJournalFailed)
	assert.ErrorContains(t, w.Err(), "disk full")
	assert.ErrorIs(t, w.WaitFor(context.Background(), 1), ErrJournalFailed)
	assert.Zero(t, w.Committed())
}

func TestJournalWriterWaitHonoursContext(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	w := NewJournalWriter(store, 2, time.Second, zaptest.NewLogger(t))

	assert.NoError(t, w.WaitFor(context.Background(), 2), "entries loaded at startup count as committed")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.WaitFor(ctx, 3), context.DeadlineExceeded)
}

// A full dispatcher queue must never leave a shorter journal that still
// replays cleanly without anybody noticing.
func TestJournalWriterUnderBackPressure(t *testing.T) {
	ctx := context.Background()
	admin := common.HexToAddress("0xad00000000000000000000000000000000000001")

	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	journal := &gatedJournal{Journal: store, release: make(chan struct{})}
	writer := NewJournalWriter(journal, 0, time.Second, zaptest.NewLogger(t))

	dispatcher := events.NewDispatcher(1, zaptest.NewLogger(t))
	dispatcher.OnDrop(writer.Missed)
	dispatcher.Subscribe(writer.Write)
	dispatcher.Start()

	election := service.NewElection(admin)
	election.Log().Subscribe(func(entry events.Entry) { dispatcher.Publish(entry) })

	require.NoError(t, election.RegisterVoter(admin, voter))
	require.NoError(t, election.StartProposalsRegistering(admin))
	_, err = election.AddProposal(voter, "bike lanes")
	require.NoError(t, err)
	require.NoError(t, election.EndProposalsRegistering(admin))
	require.NoError(t, election.StartVotingSession(admin))
	require.NoError(t, election.SetVote(voter, 1))

	select {
	case <-writer.Failed():
	default:
		t.Fatal("dropped entries went unnoticed")
	}
	assert.NotZero(t, dispatcher.Dropped())

	// The vote is never reported as stored.
	err = writer.WaitFor(ctx, uint64(election.Log().Len()))
	assert.ErrorIs(t, err, ErrJournalFailed)

	close(journal.release)
	dispatcher.Stop()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Less(t, len(loaded), election.Log().Len())
	assert.Equal(t, uint64(len(loaded)), writer.Committed())

	replayed, err := service.Replay(admin, loaded)
	require.NoError(t, err)
	assert.NotEqual(t, models.VotingSessionStarted, replayed.Phase())
}
