package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voting-workflow/models"
	"voting-workflow/service"
	"voting-workflow/storage"
)

var (
	testAdmin = common.HexToAddress("0xad00000000000000000000000000000000000001")
	testVoter = common.HexToAddress("0x1000000000000000000000000000000000000001")
)

// journalledElection runs a short election into a JSON journal and returns
// the journal together with the snapshot of the final state.
func journalledElection(t *testing.T, dir string) (*storage.JSONStore, models.Snapshot) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewJSONStore(dir)
	require.NoError(t, err)

	e := service.NewElection(testAdmin)
	require.NoError(t, e.RegisterVoter(testAdmin, testVoter))
	require.NoError(t, e.StartProposalsRegistering(testAdmin))
	_, err = e.AddProposal(testVoter, "library hours")
	require.NoError(t, err)
	for _, entry := range e.Log().Entries() {
		require.NoError(t, store.Append(ctx, entry))
	}
	return store, e.Snapshot()
}

func TestRestoreElection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, snapshot := journalledElection(t, dir)
	archive, err := storage.NewSnapshotArchive(filepath.Join(dir, "snapshots"), 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, archive.SaveSnapshot(ctx, snapshot))

	e, err := restoreElection(ctx, testAdmin, store, []storage.SnapshotWriter{archive},
		service.NewMetricsCollector(nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, models.ProposalsRegistrationStarted, e.Phase())
	assert.Equal(t, snapshot.HeadHash, e.Log().Head())
}

func TestRestoreElectionRefusesJournalBehindSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, snapshot := journalledElection(t, dir)
	archive, err := storage.NewSnapshotArchive(filepath.Join(dir, "snapshots"), 2, zaptest.NewLogger(t))
	require.NoError(t, err)

	// The snapshot saw a vote the journal never received.
	snapshot.EntryCount += 3
	snapshot.Phase = models.VotingSessionStarted
	require.NoError(t, archive.SaveSnapshot(ctx, snapshot))

	_, err = restoreElection(ctx, testAdmin, store, []storage.SnapshotWriter{archive},
		service.NewMetricsCollector(nil), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "journal holds 3 entries")
}
