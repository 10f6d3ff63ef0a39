package service

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"voting-workflow/events"
	"voting-workflow/models"
)

var ErrReplay = errors.New("journal replay failed")

// Replay rebuilds an election administered by admin from journal entries.
// Each event is executed again through the public operations, so a journal
// that could not have been produced by a valid election is rejected. The
// rebuilt log must end on the same hash as the journal. Replayed operations
// are not counted by the election metrics; only the phase timing recorded in
// the journal is carried over.
func Replay(admin common.Address, entries []events.Entry, opts ...Option) (*Election, error) {
	if err := events.ValidateChain(entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReplay, err)
	}

	e := NewElection(admin, opts...)
	live := e.metrics
	e.metrics = NewMetricsCollector(nil)
	for _, entry := range entries {
		if err := e.apply(entry.Event); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrReplay, entry.Index, err)
		}
	}

	if len(entries) > 0 {
		want := entries[len(entries)-1].Hash
		if got := e.log.Head(); got != want {
			return nil, fmt.Errorf("%w: head hash %s does not match journal %s", ErrReplay, got.Hex(), want.Hex())
		}
	}

	e.metrics = live
	live.restoreHistory(entries)
	e.recordSizes()
	return e, nil
}

func (e *Election) apply(ev models.Event) error {
	switch ev.Kind {
	case models.EventVoterRegistered:
		return e.RegisterVoter(e.admin, ev.Voter)
	case models.EventProposalRegistered:
		id, err := e.AddProposal(ev.Voter, ev.Description)
		if err != nil {
			return err
		}
		if id != ev.ProposalID {
			return fmt.Errorf("proposal registered as %d, journal says %d", id, ev.ProposalID)
		}
		return nil
	case models.EventVoted:
		return e.SetVote(ev.Voter, ev.ProposalID)
	case models.EventWorkflowStatusChange:
		if current := e.Phase(); current != ev.OldPhase {
			return fmt.Errorf("phase is %s, journal says %s", current, ev.OldPhase)
		}
		return e.Advance(e.admin, ev.NewPhase)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}
