package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/natserract/sfsync/pkg/crmsync"
	"go.uber.org/zap"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const insertRun = `INSERT INTO sync_runs (id, object_name, table_name, status, dry_run)
VALUES ($1, $2, $3, $4, $5)`

const finishRun = `UPDATE sync_runs
SET status = $2, soql = $3, fetched = $4, created = $5, updated = $6, deleted = $7,
    duplicates = $8, error = $9, duration_ms = $10, finished_at = NOW()
WHERE id = $1`

// execer is the part of pgxpool.Pool the ledger needs
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// RunLedger records one sync_runs row per object sync
type RunLedger struct {
	db     execer
	logger *zap.Logger
}

var _ crmsync.RunLedger = (*RunLedger)(nil)

// NewRunLedger creates a run ledger backed by db
func NewRunLedger(db *DB, logger *zap.Logger) *RunLedger {
	return &RunLedger{db: db.Pool(), logger: logger}
}

// StartRun inserts a running row and returns its id
func (l *RunLedger) StartRun(ctx context.Context, object, table string, dryRun bool) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := l.db.Exec(ctx, insertRun, id, object, table, StatusRunning, dryRun); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert sync run: %w", err)
	}

	l.logger.Debug("Recorded sync run start",
		zap.String("run_id", id.String()),
		zap.String("object", object))
	return id, nil
}

// FinishRun stores the outcome of the run with the given id
func (l *RunLedger) FinishRun(ctx context.Context, id uuid.UUID, summary crmsync.ObjectSummary, runErr error) error {
	status := StatusCompleted
	errText := pgtype.Text{}
	if runErr != nil {
		status = StatusFailed
		errText = pgtype.Text{String: runErr.Error(), Valid: true}
	}

	tag, err := l.db.Exec(ctx, finishRun,
		id,
		status,
		pgtype.Text{String: summary.Query, Valid: summary.Query != ""},
		summary.Fetched,
		summary.Created,
		summary.Updated,
		summary.Deleted,
		summary.Duplicates,
		errText,
		pgtype.Int4{Int32: int32(summary.Duration.Milliseconds()), Valid: true},
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync run %s not found", id)
	}

	l.logger.Debug("Recorded sync run outcome",
		zap.String("run_id", id.String()),
		zap.String("status", status))
	return nil
}
