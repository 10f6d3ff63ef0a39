package service

import "errors"

// Failure kinds of election operations. Every operation error wraps exactly
// one of them and can be matched with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrPhase             = errors.New("wrong phase")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrEmptyProposal     = errors.New("empty proposal")
	ErrNotFound          = errors.New("not found")
)

var errorCodes = map[error]string{
	ErrUnauthorized:      "unauthorized",
	ErrPhase:             "wrong_phase",
	ErrAlreadyRegistered: "already_registered",
	ErrAlreadyVoted:      "already_voted",
	ErrEmptyProposal:     "empty_proposal",
	ErrNotFound:          "not_found",
}

// ElectionError describes a rejected election operation. A rejected
// operation never changes state.
type ElectionError struct {
	Op     string
	Kind   error
	Reason string
}

func (e *ElectionError) Error() string {
	return e.Op + ": " + e.Reason
}

func (e *ElectionError) Unwrap() error {
	return e.Kind
}

// Code returns a stable machine readable name for the failure kind.
func (e *ElectionError) Code() string {
	if code, ok := errorCodes[e.Kind]; ok {
		return code
	}
	return "unknown"
}

func newError(op string, kind error, reason string) *ElectionError {
	return &ElectionError{Op: op, Kind: kind, Reason: reason}
}

// Reasons reported with the failure kinds.
const (
	reasonNotOwner          = "caller is not the owner"
	reasonNotVoter          = "you're not a voter"
	reasonAlreadyRegistered = "already registered"
	reasonEmptyProposal     = "proposal description must not be empty"
	reasonAlreadyVoted      = "you have already voted"
	reasonProposalNotFound  = "proposal not found"

	reasonRegistrationClosed  = "voters registration is not open yet"
	reasonProposalsNotAllowed = "proposals are not allowed yet"
	reasonVotingNotStarted    = "voting session havent started yet"
	reasonCantStartProposals  = "registering proposals cant be started now"
	reasonProposalsNotStarted = "registering proposals havent started yet"
	reasonProposalsNotEnded   = "registering proposals phase is not finished"
	reasonVotingNotEnded      = "current status is not voting session ended"
)
