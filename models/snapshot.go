package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is a point-in-time copy of the whole election state.
type Snapshot struct {
	Administrator     common.Address `json:"administrator"`
	Phase             Phase          `json:"phase"`
	PhaseName         string         `json:"phase_name"`
	WinningProposalID uint64         `json:"winning_proposal_id"`
	Voters            []VoterEntry   `json:"voters"`
	Proposals         []Proposal     `json:"proposals"`
	EntryCount        uint64         `json:"entry_count"`
	HeadHash          common.Hash    `json:"head_hash"`
	TakenAt           time.Time      `json:"taken_at"`
}
