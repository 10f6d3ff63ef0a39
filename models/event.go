package models

import "github.com/ethereum/go-ethereum/common"

type EventKind string

const (
	EventVoterRegistered      EventKind = "VoterRegistered"
	EventProposalRegistered   EventKind = "ProposalRegistered"
	EventVoted                EventKind = "Voted"
	EventWorkflowStatusChange EventKind = "WorkflowStatusChange"
)

// Event is a notification emitted by a successful election operation. Only
// the fields relevant to Kind are set.
//
// ProposalRegistered carries the author in Voter and the text in Description
// so that a persisted log is enough to rebuild the election.
type Event struct {
	Kind        EventKind      `json:"kind"`
	Voter       common.Address `json:"voter"`
	ProposalID  uint64         `json:"proposal_id"`
	Description string         `json:"description,omitempty"`
	OldPhase    Phase          `json:"old_phase"`
	NewPhase    Phase          `json:"new_phase"`
}

func VoterRegistered(voter common.Address) Event {
	return Event{Kind: EventVoterRegistered, Voter: voter}
}

func ProposalRegistered(author common.Address, id uint64, description string) Event {
	return Event{Kind: EventProposalRegistered, Voter: author, ProposalID: id, Description: description}
}

func Voted(voter common.Address, id uint64) Event {
	return Event{Kind: EventVoted, Voter: voter, ProposalID: id}
}

func WorkflowStatusChange(old, next Phase) Event {
	return Event{Kind: EventWorkflowStatusChange, OldPhase: old, NewPhase: next}
}
