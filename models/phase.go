package models

import "fmt"

// Phase is the workflow status of the election. Values are ordered and only
// ever increase over the lifetime of an election.
type Phase uint8

const (
	RegisteringVoters Phase = iota
	ProposalsRegistrationStarted
	ProposalsRegistrationEnded
	VotingSessionStarted
	VotingSessionEnded
	VotesTallied
)

var phaseNames = [...]string{
	RegisteringVoters:            "RegisteringVoters",
	ProposalsRegistrationStarted: "ProposalsRegistrationStarted",
	ProposalsRegistrationEnded:   "ProposalsRegistrationEnded",
	VotingSessionStarted:         "VotingSessionStarted",
	VotingSessionEnded:           "VotingSessionEnded",
	VotesTallied:                 "VotesTallied",
}

func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
	return phaseNames[p]
}

// Valid reports whether p is one of the six known phases.
func (p Phase) Valid() bool {
	return int(p) < len(phaseNames)
}

// Next returns the phase that immediately follows p. VotesTallied is terminal
// and returns itself.
func (p Phase) Next() Phase {
	if p >= VotesTallied {
		return VotesTallied
	}
	return p + 1
}

// ParsePhase resolves a phase name as returned by String.
func ParsePhase(name string) (Phase, error) {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", name)
}
