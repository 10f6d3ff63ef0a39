package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"voting-workflow/models"
)

const DefaultCheckpointSchedule = "@every 5m"

// SnapshotSource produces the state to checkpoint.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// Checkpointer periodically writes snapshots of an election. A snapshot is
// skipped when nothing was appended since the previous one.
type Checkpointer struct {
	cron    *cron.Cron
	source  SnapshotSource
	writers []SnapshotWriter
	timeout time.Duration
	logger  *zap.Logger
	journal *JournalWriter

	mu          sync.Mutex
	lastEntries uint64
	written     bool
}

func NewCheckpointer(source SnapshotSource, logger *zap.Logger, writers ...SnapshotWriter) *Checkpointer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkpointer{
		cron:    cron.New(),
		source:  source,
		writers: writers,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// FollowJournal makes every snapshot wait until w has stored the entries it
// covers, so a snapshot is never ahead of the journal.
func (c *Checkpointer) FollowJournal(w *JournalWriter) {
	c.journal = w
}

// Start schedules checkpoints according to schedule, a robfig/cron spec such
// as "@every 5m" or "*/10 * * * *".
func (c *Checkpointer) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultCheckpointSchedule
	}
	if _, err := c.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.Checkpoint(ctx, false); err != nil {
			c.logger.Error("checkpoint failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid checkpoint schedule: %w", err)
	}

	c.logger.Info("starting checkpointer", zap.String("schedule", schedule))
	c.cron.Start()
	return nil
}

// Checkpoint writes one snapshot to every writer. Unless force is set it does
// nothing when the log has not grown since the last checkpoint.
func (c *Checkpointer) Checkpoint(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.source.Snapshot()
	if !force && c.written && snapshot.EntryCount == c.lastEntries {
		return nil
	}
	if c.journal != nil {
		if err := c.journal.WaitFor(ctx, snapshot.EntryCount); err != nil {
			return fmt.Errorf("snapshot of %d entries not journaled: %w", snapshot.EntryCount, err)
		}
	}

	for _, w := range c.writers {
		if err := w.SaveSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}
	c.lastEntries = snapshot.EntryCount
	c.written = true
	c.logger.Info("checkpoint written",
		zap.Uint64("entries", snapshot.EntryCount),
		zap.Stringer("phase", snapshot.Phase))
	return nil
}

// Stop waits for a running checkpoint and writes a final one.
func (c *Checkpointer) Stop(ctx context.Context) error {
	<-c.cron.Stop().Done()
	return c.Checkpoint(ctx, false)
}
