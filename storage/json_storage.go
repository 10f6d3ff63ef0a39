package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"voting-workflow/events"
)

const journalFile = "events.json"

// JSONStore keeps the journal in a single JSON file under basePath. The
// whole file is rewritten on every append.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
	entries  []events.Entry
}

type journalDocument struct {
	Entries []events.Entry `json:"entries"`
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	store := &JSONStore{basePath: basePath}
	entries, err := store.loadFromFile()
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	store.entries = entries
	return store, nil
}

func (s *JSONStore) Append(_ context.Context, entry events.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkNext(len(s.entries), entry); err != nil {
		return fmt.Errorf("append entry %d: %w", entry.Index, err)
	}

	entries := append(s.entries, entry)
	if err := s.saveToFile(entries); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

// Load returns a copy of the stored entries.
func (s *JSONStore) Load(_ context.Context) ([]events.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]events.Entry, len(s.entries))
	copy(entries, s.entries)
	return entries, nil
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) path() string {
	return filepath.Join(s.basePath, journalFile)
}

func (s *JSONStore) loadFromFile() ([]events.Entry, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return make([]events.Entry, 0), nil
		}
		return nil, err
	}

	var doc journalDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make([]events.Entry, 0)
	}
	return doc.Entries, nil
}

func (s *JSONStore) saveToFile(entries []events.Entry) error {
	data, err := json.MarshalIndent(journalDocument{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}
	return writeFileAtomic(s.path(), data)
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return nil
}
