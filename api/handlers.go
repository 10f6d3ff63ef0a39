package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"voting-workflow/events"
	"voting-workflow/identity"
	"voting-workflow/models"
)

type ChallengeRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type ChallengeResponse struct {
	Message string `json:"message"`
}

type LoginRequest struct {
	Address   string `json:"address" validate:"required,eth_addr"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

type LoginResponse struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RegisterVoterRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type AddProposalRequest struct {
	Description string `json:"description"`
}

type AddProposalResponse struct {
	ID uint64 `json:"id"`
}

type SetVoteRequest struct {
	ProposalID *uint64 `json:"proposal_id" validate:"required"`
}

type ProposalResponse struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	VoteCount   uint64 `json:"vote_count"`
}

type WorkflowResponse struct {
	Phase         models.Phase `json:"phase"`
	PhaseName     string       `json:"phase_name"`
	Administrator string       `json:"administrator"`
}

type WinnerResponse struct {
	WinningProposalID uint64 `json:"winning_proposal_id"`
	Tallied           bool   `json:"tallied"`
}

type EventsResponse struct {
	Entries []events.Entry `json:"entries"`
	Head    common.Hash    `json:"head"`
}

// transitions maps the path names of workflow transitions to the phase each
// one leads into.
var transitions = map[string]models.Phase{
	"start-proposals": models.ProposalsRegistrationStarted,
	"end-proposals":   models.ProposalsRegistrationEnded,
	"start-voting":    models.VotingSessionStarted,
	"end-voting":      models.VotingSessionEnded,
	"tally":           models.VotesTallied,
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return false
	}
	return true
}

func caller(r *http.Request) common.Address {
	addr, _ := identity.CurrentCaller(r.Context())
	return addr
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if !s.decode(w, r, &req) {
		return
	}
	message, err := s.auth.Challenge(common.HexToAddress(req.Address))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ChallengeResponse{Message: message})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "signature must be 0x-prefixed hex")
		return
	}

	addr := common.HexToAddress(req.Address)
	token, expiresAt, err := s.auth.Login(addr, sig)
	if err != nil {
		if errors.Is(err, identity.ErrNoChallenge) ||
			errors.Is(err, identity.ErrSignatureMismatch) ||
			errors.Is(err, identity.ErrInvalidSignature) {
			writeError(w, http.StatusUnauthorized, codeLoginFailed, err.Error())
			return
		}
		s.logger.Error("failed to issue session token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to issue session token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Address: addr.Hex(), Token: token, ExpiresAt: expiresAt})
}

func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	var req RegisterVoterRequest
	if !s.decode(w, r, &req) {
		return
	}
	target := common.HexToAddress(req.Address)
	if err := s.election.RegisterVoter(caller(r), target); err != nil {
		writeElectionError(w, err)
		return
	}
	if !s.persisted(w, r) {
		return
	}
	writeJSON(w, http.StatusCreated, models.VoterEntry{
		Address: target,
		Voter:   models.Voter{IsRegistered: true},
	})
}

func (s *Server) handleGetVoter(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("invalid address %q", raw))
		return
	}
	target := common.HexToAddress(raw)

	voter, err := s.election.GetVoter(caller(r), target)
	if err != nil {
		writeElectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.VoterEntry{Address: target, Voter: voter})
}

func (s *Server) handleAddProposal(w http.ResponseWriter, r *http.Request) {
	var req AddProposalRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.election.AddProposal(caller(r), req.Description)
	if err != nil {
		writeElectionError(w, err)
		return
	}
	if !s.persisted(w, r) {
		return
	}
	writeJSON(w, http.StatusCreated, AddProposalResponse{ID: id})
}

func (s *Server) handleGetProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.election.GetProposals(caller(r))
	if err != nil {
		writeElectionError(w, err)
		return
	}
	resp := make([]ProposalResponse, len(proposals))
	for i, p := range proposals {
		resp[i] = ProposalResponse{ID: uint64(i), Description: p.Description, VoteCount: p.VoteCount}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "proposal id must be a non-negative integer")
		return
	}
	p, err := s.election.GetProposal(caller(r), id)
	if err != nil {
		writeElectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProposalResponse{ID: id, Description: p.Description, VoteCount: p.VoteCount})
}

func (s *Server) handleSetVote(w http.ResponseWriter, r *http.Request) {
	var req SetVoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.election.SetVote(caller(r), *req.ProposalID); err != nil {
		writeElectionError(w, err)
		return
	}
	if !s.persisted(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("transition")
	next, ok := transitions[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_transition", fmt.Sprintf("unknown transition %q", name))
		return
	}
	if err := s.election.Advance(caller(r), next); err != nil {
		writeElectionError(w, err)
		return
	}
	if !s.persisted(w, r) {
		return
	}
	s.writeWorkflow(w)
}

// persisted waits until the journal holds every entry appended so far, which
// includes the one of the operation just performed.
func (s *Server) persisted(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.Journal == nil {
		return true
	}
	n := uint64(s.election.Log().Len())
	if err := s.opts.Journal.WaitFor(r.Context(), n); err != nil {
		s.logger.Error("operation not persisted", zap.Uint64("entries", n), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "operation could not be persisted")
		return false
	}
	return true
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	s.writeWorkflow(w)
}

func (s *Server) writeWorkflow(w http.ResponseWriter) {
	phase := s.election.Phase()
	writeJSON(w, http.StatusOK, WorkflowResponse{
		Phase:         phase,
		PhaseName:     phase.String(),
		Administrator: s.election.Administrator().Hex(),
	})
}

func (s *Server) handleGetWinner(w http.ResponseWriter, r *http.Request) {
	id, tallied := s.election.Winner()
	writeJSON(w, http.StatusOK, WinnerResponse{WinningProposalID: id, Tallied: tallied})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	log := s.election.Log()
	writeJSON(w, http.StatusOK, EventsResponse{Entries: log.Since(since), Head: log.Head()})
}

func (s *Server) handleGetPhaseMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.election.Metrics().GetPhaseMetrics())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"phase":  s.election.Phase().String(),
	})
}
