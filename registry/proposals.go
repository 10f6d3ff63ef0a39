package registry

import "voting-workflow/models"

// ProposalRegistry is the ordered list of proposals. A proposal's id is its
// position and never changes once appended.
type ProposalRegistry struct {
	proposals []models.Proposal
}

func NewProposalRegistry() *ProposalRegistry {
	return &ProposalRegistry{}
}

// Append adds a proposal with no votes and returns its id.
func (r *ProposalRegistry) Append(description string) uint64 {
	r.proposals = append(r.proposals, models.Proposal{Description: description})
	return uint64(len(r.proposals) - 1)
}

func (r *ProposalRegistry) Get(id uint64) (models.Proposal, bool) {
	if id >= uint64(len(r.proposals)) {
		return models.Proposal{}, false
	}
	return r.proposals[id], true
}

func (r *ProposalRegistry) Len() int {
	return len(r.proposals)
}

// All returns a copy of every proposal in id order.
func (r *ProposalRegistry) All() []models.Proposal {
	out := make([]models.Proposal, len(r.proposals))
	copy(out, r.proposals)
	return out
}

// IncrementVotes adds one vote to proposal id. It reports false when id is
// out of range.
func (r *ProposalRegistry) IncrementVotes(id uint64) bool {
	if id >= uint64(len(r.proposals)) {
		return false
	}
	r.proposals[id].VoteCount++
	return true
}
