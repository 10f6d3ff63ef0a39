package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"voting-workflow/events"
	"voting-workflow/models"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS election_events (
	idx        BIGINT PRIMARY KEY,
	id         TEXT NOT NULL,
	ts         BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	event      JSONB NOT NULL,
	prev_hash  BYTEA NOT NULL,
	hash       BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS election_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	taken_at    TIMESTAMPTZ NOT NULL,
	phase       SMALLINT NOT NULL,
	entry_count BIGINT NOT NULL,
	snapshot    JSONB NOT NULL
);`

// PostgresJournal stores the journal in PostgreSQL.
type PostgresJournal struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresJournal connects to connStr and creates the schema if needed.
func NewPostgresJournal(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresJournal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &PostgresJournal{pool: pool, logger: logger}, nil
}

// Append inserts entry. The table primary key rejects a second entry with the
// same index; a gap is detected before inserting.
func (j *PostgresJournal) Append(ctx context.Context, entry events.Entry) error {
	payload, err := json.Marshal(entry.Event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM election_events`).Scan(&count); err != nil {
		return fmt.Errorf("counting entries: %w", err)
	}
	if entry.Index > uint64(count) {
		return fmt.Errorf("append entry %d: %w", entry.Index, ErrOutOfOrder)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO election_events (idx, id, ts, kind, event, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(entry.Index), entry.ID, entry.Timestamp, string(entry.Event.Kind),
		payload, entry.PrevHash.Bytes(), entry.Hash.Bytes())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("append entry %d: %w", entry.Index, ErrDuplicate)
		}
		return fmt.Errorf("inserting entry %d: %w", entry.Index, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing entry %d: %w", entry.Index, err)
	}
	return nil
}

// Load returns every entry ordered by index.
func (j *PostgresJournal) Load(ctx context.Context) ([]events.Entry, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT idx, id, ts, event, prev_hash, hash
		FROM election_events
		ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (events.Entry, error) {
		var (
			entry    events.Entry
			index    int64
			payload  []byte
			prevHash []byte
			hash     []byte
		)
		if err := row.Scan(&index, &entry.ID, &entry.Timestamp, &payload, &prevHash, &hash); err != nil {
			return events.Entry{}, err
		}
		if err := json.Unmarshal(payload, &entry.Event); err != nil {
			return events.Entry{}, fmt.Errorf("decoding event %d: %w", index, err)
		}
		entry.Index = uint64(index)
		entry.PrevHash = common.BytesToHash(prevHash)
		entry.Hash = common.BytesToHash(hash)
		return entry, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning entries: %w", err)
	}
	return entries, nil
}

// SaveSnapshot stores snapshot as a new row.
func (j *PostgresJournal) SaveSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = j.pool.Exec(ctx, `
		INSERT INTO election_snapshots (taken_at, phase, entry_count, snapshot)
		VALUES ($1, $2, $3, $4)`,
		snapshot.TakenAt, int16(snapshot.Phase), int64(snapshot.EntryCount), payload)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	j.logger.Debug("snapshot stored", zap.Uint64("entries", snapshot.EntryCount))
	return nil
}

// LoadLatest returns the most recently stored snapshot.
func (j *PostgresJournal) LoadLatest(ctx context.Context) (models.Snapshot, bool, error) {
	var payload []byte
	err := j.pool.QueryRow(ctx, `
		SELECT snapshot FROM election_snapshots
		ORDER BY id DESC
		LIMIT 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Snapshot{}, false, nil
	}
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("querying snapshot: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snapshot, true, nil
}

func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}
