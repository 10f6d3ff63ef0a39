package models

import "github.com/ethereum/go-ethereum/common"

// Voter is the registry record of one eligible address.
type Voter struct {
	IsRegistered    bool   `json:"is_registered"`
	HasVoted        bool   `json:"has_voted"`
	VotedProposalID uint64 `json:"voted_proposal_id"`
}

// VoterEntry pairs a voter record with its address, for listings and snapshots.
type VoterEntry struct {
	Address common.Address `json:"address"`
	Voter
}
