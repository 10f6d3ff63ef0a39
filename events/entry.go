package events

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"voting-workflow/models"
)

// Entry is one record of the notification log. Entries are linked by hash;
// ID and Timestamp are informational and not covered by the hash, so a
// replayed election reproduces the same chain.
type Entry struct {
	ID        string       `json:"id"`
	Index     uint64       `json:"index"`
	Timestamp int64        `json:"timestamp"`
	Event     models.Event `json:"event"`
	PrevHash  common.Hash  `json:"prev_hash"`
	Hash      common.Hash  `json:"hash"`
}

func (e Entry) calculateHash() common.Hash {
	// Event only holds plain fields, Marshal cannot fail.
	payload, _ := json.Marshal(e.Event)

	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, e.Index)
	buffer.WriteString(string(e.Event.Kind))
	buffer.Write(payload)
	buffer.Write(e.PrevHash.Bytes())

	d := sha3.NewLegacyKeccak256()
	d.Write(buffer.Bytes())
	return common.BytesToHash(d.Sum(nil))
}

// Validate recomputes the entry hash and compares it with the stored one.
func (e Entry) Validate() bool {
	return e.calculateHash() == e.Hash
}

// ValidateChain checks that entries are dense from index 0, that every entry
// links to its predecessor and that no entry was altered.
func ValidateChain(entries []Entry) error {
	var prev common.Hash
	for i, entry := range entries {
		if entry.Index != uint64(i) {
			return fmt.Errorf("entry %d: unexpected index %d", i, entry.Index)
		}
		if entry.PrevHash != prev {
			return fmt.Errorf("entry %d: broken link to previous entry", i)
		}
		if !entry.Validate() {
			return fmt.Errorf("entry %d: hash mismatch", i)
		}
		prev = entry.Hash
	}
	return nil
}
