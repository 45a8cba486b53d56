package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
)

// PostgresRepository implements Repository using PostgreSQL. The entry
// list is stored as an ordered JSONB array on the snapshot row.
type PostgresRepository struct {
	db     *sql.DB
	qb     sq.StatementBuilderType
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		qb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger: logger,
	}
}

// GetCurrent returns the snapshot with is_current = true. Observing more
// than one current row is an invariant violation and is reported as such
// rather than silently picking one.
func (r *PostgresRepository) GetCurrent(ctx context.Context) (*Snapshot, error) {
	query, args, err := r.selectSnapshots().Where(sq.Eq{"is_current": true}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get current snapshot: %w", err)
	}
	defer rows.Close()

	var current *Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if current != nil {
			return nil, fmt.Errorf("%w: multiple current snapshots (%s, %s)",
				ErrInvariantViolation, current.Period, s.Period)
		}
		current = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get current snapshot: %w", err)
	}
	if current == nil {
		return nil, ErrNoCurrent
	}
	return current, nil
}

// GetByPeriod returns the snapshot for a period label.
func (r *PostgresRepository) GetByPeriod(ctx context.Context, period string) (*Snapshot, error) {
	query, args, err := r.selectSnapshots().Where(sq.Eq{"period": period}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot by period: %w", err)
	}
	return s, nil
}

// Publish stores the snapshot and atomically moves the current flag in a
// single transaction: unset every is_current, then upsert the target with
// is_current = true. No reader sees zero or multiple current snapshots.
func (r *PostgresRepository) Publish(ctx context.Context, s *Snapshot) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin publish transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback publish transaction", "error", err)
		}
	}()

	if err := PublishInTx(ctx, tx, s); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish transaction: %w", err)
	}
	return nil
}

// PublishInTx performs the current-flag swap inside an existing
// transaction, for callers (apply) that publish as part of a larger
// atomic unit.
func PublishInTx(ctx context.Context, tx *sql.Tx, s *Snapshot) error {
	entries, err := json.Marshal(s.Entries)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}

	qb := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	unset, args, err := qb.Update("ranking_snapshots").
		Set("is_current", false).
		Where(sq.Eq{"is_current": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, unset, args...); err != nil {
		return fmt.Errorf("unset current snapshot: %w", err)
	}

	insert, args, err := qb.Insert("ranking_snapshots").
		Columns("id", "period", "algorithm_version", "is_current", "entries", "created_at").
		Values(s.ID, s.Period, s.AlgorithmVersion, true, entries, s.CreatedAt).
		Suffix(`ON CONFLICT (period) DO UPDATE SET
			algorithm_version = EXCLUDED.algorithm_version,
			is_current = EXCLUDED.is_current,
			entries = EXCLUDED.entries`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Count returns the number of stored snapshots.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	query, args, err := r.qb.Select("COUNT(*)").From("ranking_snapshots").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) selectSnapshots() sq.SelectBuilder {
	return r.qb.Select("id", "period", "algorithm_version", "is_current", "entries", "created_at").
		From("ranking_snapshots")
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		s       Snapshot
		entries []byte
	)
	if err := row.Scan(&s.ID, &s.Period, &s.AlgorithmVersion, &s.IsCurrent, &entries, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entries, &s.Entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
