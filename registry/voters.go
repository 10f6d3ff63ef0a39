// Package registry holds the voter and proposal records of an election.
// The registries are not safe for concurrent use; the election owning them
// serializes access.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"voting-workflow/models"
)

var ErrVoterExists = errors.New("voter already registered")

// VoterRegistry maps addresses to voter records. Records are never removed.
type VoterRegistry struct {
	voters map[common.Address]*models.Voter
	voted  int
}

func NewVoterRegistry() *VoterRegistry {
	return &VoterRegistry{voters: make(map[common.Address]*models.Voter)}
}

// Register creates a fresh record for addr.
func (r *VoterRegistry) Register(addr common.Address) error {
	if _, exists := r.voters[addr]; exists {
		return ErrVoterExists
	}
	r.voters[addr] = &models.Voter{IsRegistered: true}
	return nil
}

func (r *VoterRegistry) Exists(addr common.Address) bool {
	_, ok := r.voters[addr]
	return ok
}

// Get returns a copy of the record for addr, or the zero record.
func (r *VoterRegistry) Get(addr common.Address) (models.Voter, bool) {
	v, ok := r.voters[addr]
	if !ok {
		return models.Voter{}, false
	}
	return *v, true
}

// MarkVoted records addr's ballot. The caller checks eligibility first.
func (r *VoterRegistry) MarkVoted(addr common.Address, proposalID uint64) {
	v := r.voters[addr]
	if !v.HasVoted {
		r.voted++
	}
	v.HasVoted = true
	v.VotedProposalID = proposalID
}

func (r *VoterRegistry) Len() int {
	return len(r.voters)
}

// Addresses returns the registered addresses in byte order.
func (r *VoterRegistry) Addresses() []common.Address {
	addrs := make([]common.Address, 0, len(r.voters))
	for addr := range r.voters {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}

// Entries returns every record ordered like Addresses.
func (r *VoterRegistry) Entries() []models.VoterEntry {
	addrs := r.Addresses()
	entries := make([]models.VoterEntry, len(addrs))
	for i, addr := range addrs {
		entries[i] = models.VoterEntry{Address: addr, Voter: *r.voters[addr]}
	}
	return entries
}

// Voted counts the voters who have cast their ballot.
func (r *VoterRegistry) Voted() int {
	return r.voted
}

// LoadVoterList reads a JSON file of the form {"voters": ["0x..", ...]} and
// returns the addresses in file order. Invalid or duplicate entries fail.
func LoadVoterList(path string) ([]common.Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voters file: %w", err)
	}

	var list struct {
		Voters []string `json:"voters"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse voters file: %w", err)
	}

	seen := make(map[common.Address]bool, len(list.Voters))
	addrs := make([]common.Address, 0, len(list.Voters))
	for i, s := range list.Voters {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("voters file entry %d: invalid address %q", i, s)
		}
		addr := common.HexToAddress(s)
		if seen[addr] {
			return nil, fmt.Errorf("voters file entry %d: duplicate address %s", i, addr.Hex())
		}
		seen[addr] = true
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
