package service

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voting-workflow/events"
	"voting-workflow/identity"
	"voting-workflow/models"
	"voting-workflow/registry"
)

// Operation names used in errors, logs and metrics.
const (
	OpRegisterVoter             = "registerVoter"
	OpGetVoter                  = "getVoter"
	OpAddProposal               = "addProposal"
	OpGetProposal               = "getProposal"
	OpGetProposals              = "getProposals"
	OpSetVote                   = "setVote"
	OpStartProposalsRegistering = "startProposalsRegistering"
	OpEndProposalsRegistering   = "endProposalsRegistering"
	OpStartVotingSession        = "startVotingSession"
	OpEndVotingSession          = "endVotingSession"
	OpTallyVotes                = "tallyVotes"
)

// Election is a single election: its workflow phase, its voter and proposal
// registries and the tally result.
//
// All operations are serialized by one lock. A mutation, its checks and the
// notification it emits happen atomically. Log subscribers run while the
// lock is held and must not call back into the election.
type Election struct {
	mu     sync.RWMutex
	admin  common.Address
	phase  models.Phase
	winner uint64

	voters    *registry.VoterRegistry
	proposals *registry.ProposalRegistry
	log       *events.Log
	metrics   *MetricsCollector
	logger    *zap.Logger
}

type Option func(*Election)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Election) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(metrics *MetricsCollector) Option {
	return func(e *Election) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithLog makes the election append its notifications to log.
func WithLog(log *events.Log) Option {
	return func(e *Election) {
		if log != nil {
			e.log = log
		}
	}
}

// NewElection creates an election administered by admin, in the
// RegisteringVoters phase with empty registries.
func NewElection(admin common.Address, opts ...Option) *Election {
	e := &Election{
		admin:     admin,
		phase:     models.RegisteringVoters,
		voters:    registry.NewVoterRegistry(),
		proposals: registry.NewProposalRegistry(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = events.NewLog()
	}
	if e.metrics == nil {
		e.metrics = NewMetricsCollector(nil)
	}
	return e
}

// RegisterVoter adds target to the voter registry. Only the administrator
// may do so, and only while voters are being registered.
func (e *Election) RegisterVoter(caller, target common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !identity.IsAdministrator(caller, e.admin) {
		return e.fail(OpRegisterVoter, ErrUnauthorized, reasonNotOwner)
	}
	if e.phase != models.RegisteringVoters {
		return e.fail(OpRegisterVoter, ErrPhase, reasonRegistrationClosed)
	}
	if err := e.voters.Register(target); err != nil {
		return e.fail(OpRegisterVoter, ErrAlreadyRegistered, reasonAlreadyRegistered)
	}

	e.log.Append(models.VoterRegistered(target))
	e.succeed(OpRegisterVoter, zap.String("voter", target.Hex()))
	return nil
}

// GetVoter returns the record of target. Unknown addresses yield the zero
// record. The caller must be a registered voter.
func (e *Election) GetVoter(caller, target common.Address) (models.Voter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.voters.Exists(caller) {
		return models.Voter{}, e.fail(OpGetVoter, ErrUnauthorized, reasonNotVoter)
	}
	v, _ := e.voters.Get(target)
	return v, nil
}

// AddProposal appends a proposal authored by caller and returns its id.
func (e *Election) AddProposal(caller common.Address, description string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.voters.Exists(caller) {
		return 0, e.fail(OpAddProposal, ErrUnauthorized, reasonNotVoter)
	}
	if e.phase != models.ProposalsRegistrationStarted {
		return 0, e.fail(OpAddProposal, ErrPhase, reasonProposalsNotAllowed)
	}
	if description == "" {
		return 0, e.fail(OpAddProposal, ErrEmptyProposal, reasonEmptyProposal)
	}

	id := e.proposals.Append(description)
	e.log.Append(models.ProposalRegistered(caller, id, description))
	e.succeed(OpAddProposal, zap.String("author", caller.Hex()), zap.Uint64("proposal_id", id))
	return id, nil
}

// GetProposal returns proposal id. The caller must be a registered voter.
func (e *Election) GetProposal(caller common.Address, id uint64) (models.Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.voters.Exists(caller) {
		return models.Proposal{}, e.fail(OpGetProposal, ErrUnauthorized, reasonNotVoter)
	}
	p, ok := e.proposals.Get(id)
	if !ok {
		return models.Proposal{}, e.fail(OpGetProposal, ErrNotFound, reasonProposalNotFound)
	}
	return p, nil
}

// GetProposals returns every proposal in id order, GENESIS first once the
// proposal phase has opened.
func (e *Election) GetProposals(caller common.Address) ([]models.Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.voters.Exists(caller) {
		return nil, e.fail(OpGetProposals, ErrUnauthorized, reasonNotVoter)
	}
	return e.proposals.All(), nil
}

// SetVote casts caller's single ballot for proposal id.
func (e *Election) SetVote(caller common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	voter, ok := e.voters.Get(caller)
	if !ok {
		return e.fail(OpSetVote, ErrUnauthorized, reasonNotVoter)
	}
	if e.phase != models.VotingSessionStarted {
		return e.fail(OpSetVote, ErrPhase, reasonVotingNotStarted)
	}
	if voter.HasVoted {
		return e.fail(OpSetVote, ErrAlreadyVoted, reasonAlreadyVoted)
	}
	if !e.proposals.IncrementVotes(id) {
		return e.fail(OpSetVote, ErrNotFound, reasonProposalNotFound)
	}
	e.voters.MarkVoted(caller, id)

	e.log.Append(models.Voted(caller, id))
	e.succeed(OpSetVote, zap.String("voter", caller.Hex()), zap.Uint64("proposal_id", id))
	return nil
}

// StartProposalsRegistering opens the proposal phase and appends the GENESIS
// proposal at id 0.
func (e *Election) StartProposalsRegistering(caller common.Address) error {
	return e.transition(caller, OpStartProposalsRegistering, models.RegisteringVoters, reasonCantStartProposals, func() {
		e.proposals.Append(models.GenesisDescription)
	})
}

func (e *Election) EndProposalsRegistering(caller common.Address) error {
	return e.transition(caller, OpEndProposalsRegistering, models.ProposalsRegistrationStarted, reasonProposalsNotStarted, nil)
}

func (e *Election) StartVotingSession(caller common.Address) error {
	return e.transition(caller, OpStartVotingSession, models.ProposalsRegistrationEnded, reasonProposalsNotEnded, nil)
}

func (e *Election) EndVotingSession(caller common.Address) error {
	return e.transition(caller, OpEndVotingSession, models.VotingSessionStarted, reasonVotingNotStarted, nil)
}

// TallyVotes computes the winning proposal and closes the election. It is
// the only place the winner is written.
func (e *Election) TallyVotes(caller common.Address) error {
	return e.transition(caller, OpTallyVotes, models.VotingSessionEnded, reasonVotingNotEnded, func() {
		start := time.Now()
		result := tally(e.proposals.All())
		e.winner = result.WinningProposalID
		e.logger.Info("votes tallied",
			zap.Uint64("winning_proposal_id", result.WinningProposalID),
			zap.Uint64("winning_vote_count", result.WinningVoteCount),
			zap.Uint64("total_votes", result.TotalVotes),
			zap.Duration("took", time.Since(start)))
	})
}

// Advance performs the transition that leads into next.
func (e *Election) Advance(caller common.Address, next models.Phase) error {
	switch next {
	case models.ProposalsRegistrationStarted:
		return e.StartProposalsRegistering(caller)
	case models.ProposalsRegistrationEnded:
		return e.EndProposalsRegistering(caller)
	case models.VotingSessionStarted:
		return e.StartVotingSession(caller)
	case models.VotingSessionEnded:
		return e.EndVotingSession(caller)
	case models.VotesTallied:
		return e.TallyVotes(caller)
	default:
		return newError("advance", ErrPhase, "no transition leads to "+next.String())
	}
}

// transition moves the election from the phase from to the next one. effect
// runs after the checks and before the phase change is recorded.
func (e *Election) transition(caller common.Address, op string, from models.Phase, reason string, effect func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !identity.IsAdministrator(caller, e.admin) {
		return e.fail(op, ErrUnauthorized, reasonNotOwner)
	}
	if e.phase != from {
		return e.fail(op, ErrPhase, reason)
	}
	if effect != nil {
		effect()
	}

	old := e.phase
	e.phase = from.Next()
	e.log.Append(models.WorkflowStatusChange(old, e.phase))

	e.metrics.RecordOperation(op, nil)
	e.metrics.RecordPhaseChange(old, e.phase)
	e.recordSizes()
	e.logger.Info("workflow status changed",
		zap.String("op", op),
		zap.Stringer("from", old),
		zap.Stringer("to", e.phase))
	return nil
}

// GetWinner returns the winning proposal id, 0 until votes are tallied.
func (e *Election) GetWinner() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.winner
}

// Winner returns the winning proposal id and whether votes were tallied.
func (e *Election) Winner() (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.winner, e.phase == models.VotesTallied
}

func (e *Election) Phase() models.Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

func (e *Election) Administrator() common.Address {
	return e.admin
}

// Log returns the notification log of the election.
func (e *Election) Log() *events.Log {
	return e.log
}

func (e *Election) Metrics() *MetricsCollector {
	return e.metrics
}

// Snapshot returns a consistent copy of the whole election state.
func (e *Election) Snapshot() models.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return models.Snapshot{
		Administrator:     e.admin,
		Phase:             e.phase,
		PhaseName:         e.phase.String(),
		WinningProposalID: e.winner,
		Voters:            e.voters.Entries(),
		Proposals:         e.proposals.All(),
		EntryCount:        uint64(e.log.Len()),
		HeadHash:          e.log.Head(),
		TakenAt:           time.Now().UTC(),
	}
}

func (e *Election) fail(op string, kind error, reason string) error {
	err := newError(op, kind, reason)
	e.metrics.RecordOperation(op, err)
	e.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
	return err
}

func (e *Election) succeed(op string, fields ...zap.Field) {
	e.metrics.RecordOperation(op, nil)
	e.recordSizes()
	e.logger.Debug(op, fields...)
}

func (e *Election) recordSizes() {
	e.metrics.RecordSizes(e.voters.Len(), e.proposals.Len(), e.voters.Voted())
}
