package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"voting-workflow/events"
)

var ErrJournalFailed = errors.New("journal stopped accepting entries")

const defaultWriteTimeout = 10 * time.Second

// JournalWriter appends log entries to a Journal and tracks how many of them
// are stored. The journal must receive every entry in order, so the first
// failed append or missed entry stops the writer for good and closes Failed.
type JournalWriter struct {
	journal Journal
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	committed uint64
	err       error
	changed   chan struct{}
	failed    chan struct{}
}

// NewJournalWriter creates a writer for a journal that already holds
// committed entries.
func NewJournalWriter(journal Journal, committed uint64, timeout time.Duration, logger *zap.Logger) *JournalWriter {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalWriter{
		journal:   journal,
		timeout:   timeout,
		logger:    logger,
		committed: committed,
		changed:   make(chan struct{}),
		failed:    make(chan struct{}),
	}
}

// Write appends entry to the journal. It does nothing once the writer failed.
func (w *JournalWriter) Write(entry events.Entry) {
	if w.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.journal.Append(ctx, entry); err != nil {
		w.fail(fmt.Errorf("append entry %d: %w", entry.Index, err))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.committed = entry.Index + 1
	w.notifyLocked()
}

// Missed records that entry will never reach the writer.
func (w *JournalWriter) Missed(entry events.Entry) {
	w.fail(fmt.Errorf("entry %d was dropped before reaching the journal", entry.Index))
}

// WaitFor blocks until the first n entries are stored. It returns the
// failure of the writer if they never will be.
func (w *JournalWriter) WaitFor(ctx context.Context, n uint64) error {
	for {
		w.mu.Lock()
		if w.committed >= n {
			w.mu.Unlock()
			return nil
		}
		if w.err != nil {
			err := w.err
			w.mu.Unlock()
			return err
		}
		changed := w.changed
		w.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *JournalWriter) Committed() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

// Failed is closed when the writer stops.
func (w *JournalWriter) Failed() <-chan struct{} {
	return w.failed
}

func (w *JournalWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *JournalWriter) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	w.err = fmt.Errorf("%w: %v", ErrJournalFailed, err)
	w.logger.Error("journal writer stopped",
		zap.Uint64("committed", w.committed),
		zap.Error(err))
	close(w.failed)
	w.notifyLocked()
}

func (w *JournalWriter) notifyLocked() {
	close(w.changed)
	w.changed = make(chan struct{})
}
