package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-workflow/events"
	"voting-workflow/models"
)

var voter = common.HexToAddress("0x1000000000000000000000000000000000000001")

func sampleEntries() []events.Entry {
	log := events.NewLog()
	log.Append(models.VoterRegistered(voter))
	log.Append(models.WorkflowStatusChange(models.RegisteringVoters, models.ProposalsRegistrationStarted))
	log.Append(models.ProposalRegistered(voter, 1, "community garden"))
	return log.Entries()
}

func TestJSONStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	entries := sampleEntries()

	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, store.Append(ctx, e))
	}
	require.NoError(t, store.Close())

	reopened, err := NewJSONStore(dir)
	require.NoError(t, err)
	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, entries, loaded)
	assert.NoError(t, events.ValidateChain(loaded))

	_, err = os.Stat(filepath.Join(dir, "events.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestJSONStoreRejectsDuplicatesAndGaps(t *testing.T) {
	ctx := context.Background()
	entries := sampleEntries()
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, store.Append(ctx, entries[1]), ErrOutOfOrder)
	require.NoError(t, store.Append(ctx, entries[0]))
	assert.ErrorIs(t, store.Append(ctx, entries[0]), ErrDuplicate)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestJSONStoreEmptyAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.json"), []byte("{"), 0644))
	_, err = NewJSONStore(dir)
	assert.ErrorContains(t, err, "failed to load journal")
}
