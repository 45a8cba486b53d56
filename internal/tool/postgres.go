package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PostgresRepository implements Repository using PostgreSQL. Factor maps
// are stored as JSONB columns on the tools row; the cached current score
// is denormalized alongside them.
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

// GetByID retrieves a tool by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Tool, error) {
	query, args, err := r.selectTools().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	t, err := scanTool(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool: %w", err)
	}
	return t, nil
}

// List returns all tools ordered by ID.
func (r *PostgresRepository) List(ctx context.Context) ([]*Tool, error) {
	query, args, err := r.selectTools().OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []*Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return out, nil
}

// Insert stores a new tool.
func (r *PostgresRepository) Insert(ctx context.Context, t *Tool) error {
	baseline, delta, current, err := marshalScores(t)
	if err != nil {
		return err
	}
	query, args, err := r.qb.Insert("tools").
		Columns("id", "slug", "name", "category", "status",
			"baseline_score", "delta_score", "current_score", "overall_score", "score_updated_at").
		Values(t.ID, t.Slug, t.Name, t.Category, t.Status,
			baseline, delta, current, t.CurrentScore.Overall, t.CurrentScore.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert tool: %w", err)
	}
	return nil
}

// UpdateScores persists delta and current scores. The WHERE clause on
// score_updated_at implements the optimistic concurrency check; zero rows
// affected means another writer got there first.
func (r *PostgresRepository) UpdateScores(ctx context.Context, t *Tool, expected time.Time) error {
	query, args, err := buildUpdateScores(t, expected)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update tool scores: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tool scores: %w", err)
	}
	if affected == 0 {
		r.logger.Warn("optimistic score update rejected",
			"tool_id", t.ID,
			"expected_score_updated_at", expected)
		return ErrConcurrentUpdate
	}
	return nil
}

// UpdateScoresInTx performs the optimistic score update inside an
// existing transaction, for callers (apply) that update tools as part of
// a larger atomic unit.
func UpdateScoresInTx(ctx context.Context, tx *sql.Tx, t *Tool, expected time.Time) error {
	query, args, err := buildUpdateScores(t, expected)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update tool scores: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tool scores: %w", err)
	}
	if affected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// buildUpdateScores builds the optimistic update statement. Shared by
// the direct and transactional update paths so both enforce the same
// score_updated_at check.
func buildUpdateScores(t *Tool, expected time.Time) (string, []interface{}, error) {
	_, delta, current, err := marshalScores(t)
	if err != nil {
		return "", nil, err
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Update("tools").
		Set("delta_score", delta).
		Set("current_score", current).
		Set("overall_score", t.CurrentScore.Overall).
		Set("score_updated_at", t.CurrentScore.UpdatedAt).
		Where(sq.Eq{"id": t.ID}).
		Where(sq.Eq{"score_updated_at": expected}).
		ToSql()
}

// UpdateBaseline replaces a tool's baseline factor scores.
func (r *PostgresRepository) UpdateBaseline(ctx context.Context, id string, baseline map[string]float64) error {
	encoded, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("encode baseline_score: %w", err)
	}
	query, args, err := r.qb.Update("tools").
		Set("baseline_score", encoded).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update tool baseline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tool baseline: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored tools.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	query, args, err := r.qb.Select("COUNT(*)").From("tools").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tools: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) selectTools() sq.SelectBuilder {
	return r.qb.Select("id", "slug", "name", "category", "status",
		"baseline_score", "delta_score", "current_score", "overall_score", "score_updated_at").
		From("tools")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTool(row rowScanner) (*Tool, error) {
	var (
		t                       Tool
		baseline, delta, scores []byte
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Category, &t.Status,
		&baseline, &delta, &scores, &t.CurrentScore.Overall, &t.CurrentScore.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(baseline, &t.BaselineScore); err != nil {
		return nil, fmt.Errorf("decode baseline_score: %w", err)
	}
	if err := json.Unmarshal(delta, &t.DeltaScore); err != nil {
		return nil, fmt.Errorf("decode delta_score: %w", err)
	}
	if err := json.Unmarshal(scores, &t.CurrentScore.Factors); err != nil {
		return nil, fmt.Errorf("decode current_score: %w", err)
	}
	return &t, nil
}

func marshalScores(t *Tool) (baseline, delta, current []byte, err error) {
	if baseline, err = json.Marshal(t.BaselineScore); err != nil {
		return nil, nil, nil, fmt.Errorf("encode baseline_score: %w", err)
	}
	if delta, err = json.Marshal(t.DeltaScore); err != nil {
		return nil, nil, nil, fmt.Errorf("encode delta_score: %w", err)
	}
	if current, err = json.Marshal(t.CurrentScore.Factors); err != nil {
		return nil, nil, nil, fmt.Errorf("encode current_score: %w", err)
	}
	return baseline, delta, current, nil
}
