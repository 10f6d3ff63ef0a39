package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"voting-workflow/models"
)

const (
	snapshotPattern    = "snapshot_*.json"
	snapshotTimeLayout = "20060102150405.000"
)

// SnapshotArchive stores election snapshots as timestamped JSON files and
// keeps only the most recent ones.
type SnapshotArchive struct {
	dir    string
	keep   int
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

type snapshotFile struct {
	path  string
	taken time.Time
}

func NewSnapshotArchive(dir string, keep int, logger *zap.Logger) (*SnapshotArchive, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if keep < 1 {
		keep = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotArchive{dir: absPath, keep: keep, now: time.Now, logger: logger}, nil
}

func (a *SnapshotArchive) SaveSnapshot(_ context.Context, snapshot models.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("snapshot_%s.json", a.now().UTC().Format(snapshotTimeLayout))
	path := filepath.Join(a.dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	a.logger.Debug("snapshot saved",
		zap.String("file", name),
		zap.Uint64("entries", snapshot.EntryCount),
		zap.Stringer("phase", snapshot.Phase))

	if err := a.cleanup(); err != nil {
		a.logger.Warn("failed to clean up old snapshots", zap.Error(err))
	}
	return nil
}

// LoadLatest returns the most recent snapshot. ok is false when the archive
// is empty.
func (a *SnapshotArchive) LoadLatest(_ context.Context) (snapshot models.Snapshot, ok bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	files, err := a.list()
	if err != nil || len(files) == 0 {
		return models.Snapshot{}, false, err
	}

	latest := files[len(files)-1].path
	data, err := os.ReadFile(latest)
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("failed to decode snapshot %s: %w", filepath.Base(latest), err)
	}
	return snapshot, true, nil
}

// list returns the archived snapshots, oldest first.
func (a *SnapshotArchive) list() ([]snapshotFile, error) {
	paths, err := filepath.Glob(filepath.Join(a.dir, snapshotPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	files := make([]snapshotFile, 0, len(paths))
	for _, path := range paths {
		base := filepath.Base(path)
		stamp := strings.TrimSuffix(strings.TrimPrefix(base, "snapshot_"), ".json")
		taken, err := time.Parse(snapshotTimeLayout, stamp)
		if err != nil {
			a.logger.Warn("invalid timestamp in snapshot file name", zap.String("file", base), zap.Error(err))
			continue
		}
		files = append(files, snapshotFile{path: path, taken: taken})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].taken.Before(files[j].taken) })
	return files, nil
}

func (a *SnapshotArchive) cleanup() error {
	files, err := a.list()
	if err != nil {
		return err
	}
	for i := 0; i < len(files)-a.keep; i++ {
		if err := os.Remove(files[i].path); err != nil {
			a.logger.Warn("failed to remove old snapshot", zap.String("file", files[i].path), zap.Error(err))
			continue
		}
		a.logger.Debug("removed old snapshot", zap.String("file", files[i].path))
	}
	return nil
}
