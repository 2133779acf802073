// Package store persists run summaries, decision packets, and regression
// baselines to PostgreSQL. Persistence is optional; the JSONL artifacts on
// disk remain the canonical record and every write here is an extra copy.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// ErrBaselineNotFound reports a model id with no stored baseline.
var ErrBaselineNotFound = errors.New("baseline not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store provides the PostgreSQL persistence layer.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection. The caller
// keeps ownership of the pool and is responsible for closing it.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
        run_id        TEXT PRIMARY KEY,
        profile       TEXT NOT NULL DEFAULT '',
        query         TEXT NOT NULL DEFAULT '',
        started_at    TIMESTAMPTZ NOT NULL,
        finished_at   TIMESTAMPTZ NOT NULL,
        cycles        INT NOT NULL DEFAULT 0,
        likes         INT NOT NULL DEFAULT 0,
        passes        INT NOT NULL DEFAULT 0,
        messages      INT NOT NULL DEFAULT 0,
        termination   TEXT NOT NULL DEFAULT '',
        error         TEXT NOT NULL DEFAULT '',
        action_counts JSONB NOT NULL DEFAULT '{}'
    );`,
	`CREATE TABLE IF NOT EXISTS packets (
        run_id            TEXT NOT NULL,
        seq               INT NOT NULL,
        ts                TIMESTAMPTZ NOT NULL,
        screen_type       TEXT NOT NULL,
        quality_score     INT NOT NULL,
        action            TEXT NOT NULL DEFAULT '',
        reason            TEXT NOT NULL DEFAULT '',
        source            TEXT NOT NULL DEFAULT '',
        validation_passed BOOLEAN,
        payload           JSONB NOT NULL,
        PRIMARY KEY (run_id, seq)
    );`,
	`CREATE TABLE IF NOT EXISTS baselines (
        model_id    TEXT PRIMARY KEY,
        temperature DOUBLE PRECISION NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL,
        entries     JSONB NOT NULL
    );`,
}

// EnsureSchema creates the runs, packets, and baselines tables when they do
// not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

const sqlUpsertRun = `
    INSERT INTO runs (run_id, profile, query, started_at, finished_at, cycles, likes, passes, messages, termination, error, action_counts)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    ON CONFLICT (run_id) DO UPDATE SET
        finished_at   = EXCLUDED.finished_at,
        cycles        = EXCLUDED.cycles,
        likes         = EXCLUDED.likes,
        passes        = EXCLUDED.passes,
        messages      = EXCLUDED.messages,
        termination   = EXCLUDED.termination,
        error         = EXCLUDED.error,
        action_counts = EXCLUDED.action_counts;
`

// SaveRun upserts one run summary keyed by run id. Saving the same run again
// after it finishes refreshes the counters and termination reason.
func (s *Store) SaveRun(ctx context.Context, summary schemas.RunSummary) error {
	counts, err := json.ConfigCompatibleWithStandardLibrary.Marshal(summary.ActionCount)
	if err != nil {
		return fmt.Errorf("failed to marshal action counts: %w", err)
	}

	// Timestamps go in as UTC to prevent ambiguity across session hosts.
	_, err = s.pool.Exec(ctx, sqlUpsertRun,
		summary.RunID, summary.Profile, summary.Query,
		summary.StartedAt.UTC(), summary.FinishedAt.UTC(),
		summary.Cycles, summary.Likes, summary.Passes, summary.Messages,
		string(summary.Termination), summary.Error, counts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", summary.RunID, err)
	}
	return nil
}

var packetColumns = []string{
	"run_id", "seq", "ts", "screen_type", "quality_score",
	"action", "reason", "source", "validation_passed", "payload",
}

// SavePackets batch-inserts a run's packets in log order. Sequence numbers
// are positional and start at 1, matching the packet log line order.
func (s *Store) SavePackets(ctx context.Context, runID string, packets []schemas.Packet) error {
	if len(packets) == 0 {
		return nil
	}

	rows := make([][]any, len(packets))
	for i := range packets {
		p := &packets[i]
		payload, err := json.ConfigCompatibleWithStandardLibrary.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal packet %d: %w", i+1, err)
		}

		var action, reason, source string
		if p.Decision != nil {
			action = string(p.Decision.ActionID)
			reason = p.Decision.Reason
			source = string(p.Decision.Source)
		}
		var validationPassed *bool
		if p.Validation != nil {
			validationPassed = &p.Validation.Passed
		}

		rows[i] = []any{
			runID, i + 1, p.Timestamp.UTC(), string(p.ScreenType), p.QualityScore,
			action, reason, source, validationPassed, payload,
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit returns pgx.ErrTxClosed, which
		// is not worth logging.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"packets"}, packetColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy packets: %w", err)
	}
	if int(copyCount) != len(packets) {
		return fmt.Errorf("mismatch in copied packets count: expected %d, got %d", len(packets), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const sqlUpsertBaseline = `
    INSERT INTO baselines (model_id, temperature, created_at, entries)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (model_id) DO UPDATE SET
        temperature = EXCLUDED.temperature,
        created_at  = EXCLUDED.created_at,
        entries     = EXCLUDED.entries;
`

// SaveBaseline upserts the accepted-decision snapshot for a model id. Like
// the file form, a save replaces the stored entries wholesale.
func (s *Store) SaveBaseline(ctx context.Context, b *schemas.Baseline) error {
	if b.ModelID == "" {
		return errors.New("baseline model id is required")
	}

	entries, err := json.ConfigCompatibleWithStandardLibrary.Marshal(b.Entries)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline entries: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertBaseline,
		b.ModelID, b.Temperature, b.CreatedAt.UTC(), entries,
	); err != nil {
		return fmt.Errorf("failed to upsert baseline %s: %w", b.ModelID, err)
	}
	return nil
}

const sqlSelectBaseline = `
    SELECT temperature, created_at, entries
    FROM baselines
    WHERE model_id = $1;
`

// LoadBaseline reads the stored baseline for a model id, or
// ErrBaselineNotFound when none was ever saved.
func (s *Store) LoadBaseline(ctx context.Context, modelID string) (*schemas.Baseline, error) {
	rows, err := s.pool.Query(ctx, sqlSelectBaseline, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during row iteration: %w", err)
		}
		return nil, fmt.Errorf("baseline %q: %w", modelID, ErrBaselineNotFound)
	}

	b := &schemas.Baseline{
		ContractVersion: schemas.BaselineContract,
		ModelID:         modelID,
	}
	var entries []byte
	if err := rows.Scan(&b.Temperature, &b.CreatedAt, &entries); err != nil {
		return nil, fmt.Errorf("failed to scan baseline row: %w", err)
	}
	if err := json.ConfigCompatibleWithStandardLibrary.Unmarshal(entries, &b.Entries); err != nil {
		return nil, fmt.Errorf("failed to decode baseline entries: %w", err)
	}
	return b, nil
}
