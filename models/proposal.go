package models

// GenesisDescription is the description of the sentinel proposal stored at id 0.
const GenesisDescription = "GENESIS"

type Proposal struct {
	Description string `json:"description"`
	VoteCount   uint64 `json:"vote_count"`
}
