package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-workflow/models"
)

var voterA = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestLogAppend(t *testing.T) {
	log := NewLog()
	assert.Equal(t, common.Hash{}, log.Head())

	first := log.Append(models.VoterRegistered(voterA))
	second := log.Append(models.WorkflowStatusChange(models.RegisteringVoters, models.ProposalsRegistrationStarted))

	assert.Equal(t, uint64(0), first.Index)
	assert.Equal(t, uint64(1), second.Index)
	assert.Equal(t, first.Hash, second.PrevHash)
	assert.Equal(t, second.Hash, log.Head())
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 2, log.Len())
	require.NoError(t, ValidateChain(log.Entries()))
}

func TestLogSince(t *testing.T) {
	log := NewLog()
	for i := 0; i < 3; i++ {
		log.Append(models.VoterRegistered(voterA))
	}

	assert.Len(t, log.Since(0), 3)
	tail := log.Since(2)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(2), tail[0].Index)
	assert.Empty(t, log.Since(3))
	assert.NotNil(t, log.Since(10))
}

func TestLogEntriesAreCopies(t *testing.T) {
	log := NewLog()
	log.Append(models.VoterRegistered(voterA))

	entries := log.Entries()
	entries[0].Event.Kind = models.EventVoted

	assert.Equal(t, models.EventVoterRegistered, log.Entries()[0].Event.Kind)
}

func TestLogSubscribersSeeEveryEntryInOrder(t *testing.T) {
	log := NewLog()
	var seen []uint64
	log.Subscribe(func(e Entry) { seen = append(seen, e.Index) })

	log.Append(models.VoterRegistered(voterA))
	log.Append(models.Voted(voterA, 0))

	assert.Equal(t, []uint64{0, 1}, seen)
}

func TestHashIgnoresIDAndTimestamp(t *testing.T) {
	a := NewLog()
	b := NewLog()
	ea := a.Append(models.ProposalRegistered(voterA, 1, "more parks"))
	eb := b.Append(models.ProposalRegistered(voterA, 1, "more parks"))

	assert.NotEqual(t, ea.ID, eb.ID)
	assert.Equal(t, ea.Hash, eb.Hash)
}

func TestValidateChainDetectsTampering(t *testing.T) {
	log := NewLog()
	log.Append(models.VoterRegistered(voterA))
	log.Append(models.ProposalRegistered(voterA, 1, "library"))
	log.Append(models.Voted(voterA, 1))

	t.Run("altered event", func(t *testing.T) {
		entries := log.Entries()
		entries[1].Event.Description = "casino"
		assert.ErrorContains(t, ValidateChain(entries), "entry 1: hash mismatch")
	})

	t.Run("missing entry", func(t *testing.T) {
		entries := log.Entries()
		entries = append(entries[:1], entries[2:]...)
		assert.ErrorContains(t, ValidateChain(entries), "unexpected index")
	})

	t.Run("broken link", func(t *testing.T) {
		entries := log.Entries()
		entries[2].PrevHash = common.Hash{1}
		assert.ErrorContains(t, ValidateChain(entries), "broken link")
	})

	t.Run("empty chain", func(t *testing.T) {
		assert.NoError(t, ValidateChain(nil))
	})
}
