package events

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"voting-workflow/models"
)

// Log is the ordered, append-only notification log of an election.
//
// Subscribers are called synchronously after each append, in registration
// order. They must not block; slow consumers belong behind a Dispatcher.
// Callers of Append are expected to serialize appends themselves.
type Log struct {
	mu          sync.RWMutex
	entries     []Entry
	subscribers []func(Entry)
	now         func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

func (l *Log) Subscribe(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// Append records event as the next entry and notifies subscribers.
func (l *Log) Append(event models.Event) Entry {
	l.mu.Lock()
	entry := Entry{
		ID:        uuid.New().String(),
		Index:     uint64(len(l.entries)),
		Timestamp: l.now().UnixMilli(),
		Event:     event,
		PrevHash:  l.headLocked(),
	}
	entry.Hash = entry.calculateHash()
	l.entries = append(l.entries, entry)

	subscribers := make([]func(Entry), len(l.subscribers))
	copy(subscribers, l.subscribers)
	l.mu.Unlock()

	for _, fn := range subscribers {
		fn(entry)
	}
	return entry
}

// Entries returns a copy of every entry.
func (l *Log) Entries() []Entry {
	return l.Since(0)
}

// Since returns a copy of the entries with Index >= index.
func (l *Log) Since(index uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index >= uint64(len(l.entries)) {
		return []Entry{}
	}
	entries := make([]Entry, len(l.entries)-int(index))
	copy(entries, l.entries[index:])
	return entries
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Head returns the hash of the last entry, or the zero hash for an empty log.
func (l *Log) Head() common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headLocked()
}

func (l *Log) headLocked() common.Hash {
	if len(l.entries) == 0 {
		return common.Hash{}
	}
	return l.entries[len(l.entries)-1].Hash
}
