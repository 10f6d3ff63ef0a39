// Package storage persists the election notification log and snapshots of
// the election state.
package storage

import (
	"context"
	"errors"

	"voting-workflow/events"
	"voting-workflow/models"
)

var (
	// ErrDuplicate is returned when an entry with the same index is already stored.
	ErrDuplicate = errors.New("duplicate journal entry")
	// ErrOutOfOrder is returned when an entry would leave a gap in the journal.
	ErrOutOfOrder = errors.New("journal entry out of order")
)

// Journal is an append-only store of log entries.
type Journal interface {
	Append(ctx context.Context, entry events.Entry) error
	Load(ctx context.Context) ([]events.Entry, error)
	Close() error
}

type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snapshot models.Snapshot) error
}

// checkNext reports whether entry can follow a journal holding count entries.
func checkNext(count int, entry events.Entry) error {
	switch {
	case entry.Index < uint64(count):
		return ErrDuplicate
	case entry.Index > uint64(count):
		return ErrOutOfOrder
	}
	return nil
}
