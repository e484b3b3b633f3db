package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"synctree/internal/domain"
)

// Predefined errors for sync history operations
var (
	ErrRunNotFound = errors.New("store: sync run not found")
	ErrRunExists   = errors.New("store: sync run id already exists")
)

const historySchema = `
	CREATE SCHEMA IF NOT EXISTS synctree;
	CREATE TABLE IF NOT EXISTS synctree.sync_runs (
		id          UUID PRIMARY KEY,
		kind        TEXT NOT NULL,
		target      TEXT NOT NULL DEFAULT '',
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		total       INTEGER NOT NULL DEFAULT 0,
		succeeded   INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS synctree.sync_items (
		id           BIGSERIAL PRIMARY KEY,
		run_id       UUID NOT NULL REFERENCES synctree.sync_runs (id) ON DELETE CASCADE,
		reference    TEXT NOT NULL,
		supplier     TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		message      TEXT NOT NULL DEFAULT '',
		inventree_id BIGINT
	);
`

var _ HistoryStorer = (*PostgresStore)(nil)

// PostgresStore implements HistoryStorer using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the underlying database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the history schema and tables if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, historySchema); err != nil {
		return fmt.Errorf("store: EnsureSchema failed: %w", err)
	}
	return nil
}

// --- HistoryStorer Implementation ---

// CreateRun inserts a run. A missing ID is generated and a zero StartedAt is set to now.
func (s *PostgresStore) CreateRun(ctx context.Context, run *domain.SyncRun) (*domain.SyncRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO synctree.sync_runs (id, kind, target, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, kind, target, started_at, finished_at, total, succeeded, failed;
	`
	var created domain.SyncRun
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, run.ID, run.Kind, run.Target, run.StartedAt).Scan(
		&created.ID,
		&created.Kind,
		&created.Target,
		&created.StartedAt,
		&finishedAt,
		&created.Total,
		&created.Succeeded,
		&created.Failed,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // Unique violation
			return nil, ErrRunExists
		}
		return nil, fmt.Errorf("store: CreateRun failed to scan row: %w", err)
	}
	if finishedAt.Valid {
		created.FinishedAt = &finishedAt.Time
	}
	return &created, nil
}

func (s *PostgresStore) AddRunItem(ctx context.Context, item *domain.SyncRunItem) error {
	query := `
		INSERT INTO synctree.sync_items (run_id, reference, supplier, status, message, inventree_id)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.db.ExecContext(ctx, query, item.RunID, item.Reference, item.Supplier, item.Status, item.Message, item.InvenTreeID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // Foreign key violation
			return ErrRunNotFound
		}
		return fmt.Errorf("store: AddRunItem failed to execute insert: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and sets finished_at to now when it is unset.
func (s *PostgresStore) FinishRun(ctx context.Context, run *domain.SyncRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	query := `
		UPDATE synctree.sync_runs
		SET finished_at = $1, total = $2, succeeded = $3, failed = $4
		WHERE id = $5;
	`
	result, err := s.db.ExecContext(ctx, query, *run.FinishedAt, run.Total, run.Succeeded, run.Failed, run.ID)
	if err != nil {
		return fmt.Errorf("store: FinishRun failed to execute update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: FinishRun failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, kind, target, started_at, finished_at, total, succeeded, failed
		FROM synctree.sync_runs
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: ListRuns failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.SyncRun, 0, limit)
	for rows.Next() {
		var r domain.SyncRun
		var finishedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Kind, &r.Target, &r.StartedAt, &finishedAt, &r.Total, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("store: ListRuns failed to scan run row: %w", err)
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListRuns iteration error: %w", err)
	}
	return runs, nil
}

// ListRunItems returns a run's items in insertion order, or ErrRunNotFound.
func (s *PostgresStore) ListRunItems(ctx context.Context, runID string) ([]domain.SyncRunItem, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM synctree.sync_runs WHERE id = $1);`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("store: ListRunItems failed to check run: %w", err)
	}
	if !exists {
		return nil, ErrRunNotFound
	}

	query := `
		SELECT run_id, reference, supplier, status, message, inventree_id
		FROM synctree.sync_items
		WHERE run_id = $1
		ORDER BY id ASC;
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("store: ListRunItems failed to query items: %w", err)
	}
	defer rows.Close()

	var items []domain.SyncRunItem
	for rows.Next() {
		var it domain.SyncRunItem
		var inventreeID sql.NullInt64
		if err := rows.Scan(&it.RunID, &it.Reference, &it.Supplier, &it.Status, &it.Message, &inventreeID); err != nil {
			return nil, fmt.Errorf("store: ListRunItems failed to scan item row: %w", err)
		}
		if inventreeID.Valid {
			id := inventreeID.Int64
			it.InvenTreeID = &id
		}
		items = append(items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListRunItems iteration error: %w", err)
	}
	return items, nil
}
