package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-workflow/events"
	"voting-workflow/models"
)

// runElection drives a complete election and returns it.
func runElection(t *testing.T) *Election {
	t.Helper()
	e := newTestElection(t)
	require.NoError(t, e.RegisterVoter(admin, voter1))
	require.NoError(t, e.RegisterVoter(admin, voter2))
	require.NoError(t, e.StartProposalsRegistering(admin))
	_, err := e.AddProposal(voter1, "parks")
	require.NoError(t, err)
	_, err = e.AddProposal(voter2, "roads")
	require.NoError(t, err)
	advanceTo(t, e, models.VotingSessionStarted)
	require.NoError(t, e.SetVote(voter1, 2))
	require.NoError(t, e.SetVote(voter2, 2))
	advanceTo(t, e, models.VotesTallied)
	return e
}

func TestReplayReproducesElection(t *testing.T) {
	original := runElection(t)

	replayed, err := Replay(admin, original.Log().Entries())
	require.NoError(t, err)

	want := original.Snapshot()
	got := replayed.Snapshot()
	assert.Equal(t, want.Phase, got.Phase)
	assert.Equal(t, want.WinningProposalID, got.WinningProposalID)
	assert.Equal(t, want.Voters, got.Voters)
	assert.Equal(t, want.Proposals, got.Proposals)
	assert.Equal(t, want.EntryCount, got.EntryCount)
	assert.Equal(t, want.HeadHash, got.HeadHash)
}

func TestReplayPartialJournal(t *testing.T) {
	entries := runElection(t).Log().Entries()

	e, err := Replay(admin, entries[:4])
	require.NoError(t, err)
	assert.Equal(t, models.ProposalsRegistrationStarted, e.Phase())

	// The rebuilt election carries on from where the journal stopped.
	id, err := e.AddProposal(voter1, "schools")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

func TestReplayEmptyJournal(t *testing.T) {
	e, err := Replay(admin, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RegisteringVoters, e.Phase())
}

func TestReplayRejectsTamperedJournal(t *testing.T) {
	entries := runElection(t).Log().Entries()
	entries[3].Event.Description = "casino"

	_, err := Replay(admin, entries)
	assert.ErrorIs(t, err, ErrReplay)
	assert.ErrorContains(t, err, "hash mismatch")
}

func TestReplayRejectsImpossibleHistory(t *testing.T) {
	log := events.NewLog()
	log.Append(models.VoterRegistered(voter1))
	log.Append(models.Voted(voter1, 0))

	_, err := Replay(admin, log.Entries())
	assert.ErrorIs(t, err, ErrReplay)
	assert.ErrorContains(t, err, "entry 1")
	assert.ErrorContains(t, err, "voting session havent started yet")
}

func TestReplayRejectsPhaseMismatch(t *testing.T) {
	log := events.NewLog()
	log.Append(models.WorkflowStatusChange(models.ProposalsRegistrationStarted, models.ProposalsRegistrationEnded))

	_, err := Replay(admin, log.Entries())
	assert.ErrorIs(t, err, ErrReplay)
	assert.ErrorContains(t, err, "journal says ProposalsRegistrationStarted")
}

func TestReplayDoesNotRecountOperations(t *testing.T) {
	entries := runElection(t).Log().Entries()

	reg := prometheus.NewRegistry()
	e, err := Replay(admin, entries, WithMetrics(NewMetricsCollector(reg)))
	require.NoError(t, err)
	m := e.Metrics()

	count, err := testutil.GatherAndCount(reg, "election_operations_total")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, float64(models.VotesTallied), testutil.ToFloat64(m.phase))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.voters))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.proposals))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.votes))

	// Phase timing comes from the journal, not from the time of the replay.
	var opened events.Entry
	for _, entry := range entries {
		if entry.Event.Kind == models.EventWorkflowStatusChange {
			opened = entry
			break
		}
	}
	resp := m.GetPhaseMetrics()
	assert.Equal(t, "VotesTallied", resp.CurrentPhase)
	require.Len(t, resp.Phases, 6)
	assert.True(t, resp.Phases[0].StartTime.Equal(time.UnixMilli(entries[0].Timestamp)))
	assert.True(t, resp.Phases[1].StartTime.Equal(time.UnixMilli(opened.Timestamp)))
	assert.Equal(t, 3, resp.Phases[0].Operations, "two registrations and the transition")
	assert.True(t, resp.Phases[5].Active)

	// Live operations after the replay are counted.
	_ = e.RegisterVoter(admin, voter3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(OpRegisterVoter, "wrong_phase")))
}
