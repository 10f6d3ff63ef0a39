package service

import "voting-workflow/models"

// TallyResult summarizes a count over the proposal registry.
type TallyResult struct {
	WinningProposalID uint64 `json:"winning_proposal_id"`
	WinningVoteCount  uint64 `json:"winning_vote_count"`
	TotalVotes        uint64 `json:"total_votes"`
}

// tally scans proposals once and keeps the first proposal with the highest
// vote count, so the lowest id wins a tie. With no votes at all the winner
// is proposal 0.
func tally(proposals []models.Proposal) TallyResult {
	var result TallyResult
	for i, p := range proposals {
		result.TotalVotes += p.VoteCount
		if p.VoteCount > result.WinningVoteCount {
			result.WinningVoteCount = p.VoteCount
			result.WinningProposalID = uint64(i)
		}
	}
	return result
}
