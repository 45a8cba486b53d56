package article

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PostgresRepository implements Repository using PostgreSQL.
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

// InsertContent stores a content item, disambiguating slug collisions
// with a numeric suffix.
func (r *PostgresRepository) InsertContent(ctx context.Context, c *ContentItem) error {
	return insertContent(ctx, r.db, c)
}

// GetContent retrieves a content item by ID.
func (r *PostgresRepository) GetContent(ctx context.Context, id string) (*ContentItem, error) {
	query, args, err := r.qb.Select("id", "slug", "title", "summary", "content",
		"ingestion_type", "source_url", "category", "tags", "importance_score",
		"sentiment_score", "tool_mentions", "status", "metadata", "created_at").
		From("content_items").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		c                    ContentItem
		tags, mentions, meta []byte
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.Slug, &c.Title, &c.Summary, &c.Content,
		&c.IngestionType, &c.SourceURL, &c.Category, &tags, &c.Importance,
		&c.Sentiment, &mentions, &c.Status, &meta, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}
	if err := json.Unmarshal(tags, &c.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(mentions, &c.ToolMentions); err != nil {
		return nil, fmt.Errorf("decode tool_mentions: %w", err)
	}
	if err := json.Unmarshal(meta, &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &c, nil
}

// ListContentSince returns applied content items created at or after the
// given time, newest first.
func (r *PostgresRepository) ListContentSince(ctx context.Context, since time.Time) ([]*ContentItem, error) {
	query, args, err := r.qb.Select("id", "slug", "title", "summary", "content",
		"ingestion_type", "source_url", "category", "tags", "importance_score",
		"sentiment_score", "tool_mentions", "status", "metadata", "created_at").
		From("content_items").
		Where(sq.Eq{"status": StatusApplied}).
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	var out []*ContentItem
	for rows.Next() {
		var (
			c                    ContentItem
			tags, mentions, meta []byte
		)
		if err := rows.Scan(&c.ID, &c.Slug, &c.Title, &c.Summary, &c.Content,
			&c.IngestionType, &c.SourceURL, &c.Category, &tags, &c.Importance,
			&c.Sentiment, &mentions, &c.Status, &meta, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		if err := json.Unmarshal(tags, &c.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		if err := json.Unmarshal(mentions, &c.ToolMentions); err != nil {
			return nil, fmt.Errorf("decode tool_mentions: %w", err)
		}
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	return out, nil
}

// AppendLog appends a processing log record.
func (r *PostgresRepository) AppendLog(ctx context.Context, l *ProcessingLog) error {
	query, args, err := buildAppendLog(l)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}

// ContentCount returns the number of stored content items.
func (r *PostgresRepository) ContentCount(ctx context.Context) (int, error) {
	return r.count(ctx, "content_items")
}

// LogCount returns the number of stored processing log records.
func (r *PostgresRepository) LogCount(ctx context.Context) (int, error) {
	return r.count(ctx, "processing_logs")
}

func (r *PostgresRepository) count(ctx context.Context, table string) (int, error) {
	var n int
	query, args, err := r.qb.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// buildInsertContent builds the content insert statement. Shared with the
// transactional apply path so preview-predicted and applied rows are
// produced by identical SQL.
func buildInsertContent(c *ContentItem) (string, []interface{}, error) {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return "", nil, fmt.Errorf("encode tags: %w", err)
	}
	mentions, err := json.Marshal(c.ToolMentions)
	if err != nil {
		return "", nil, fmt.Errorf("encode tool_mentions: %w", err)
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("encode metadata: %w", err)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert("content_items").
		Columns("id", "slug", "title", "summary", "content", "ingestion_type",
			"source_url", "category", "tags", "importance_score", "sentiment_score",
			"tool_mentions", "status", "metadata", "created_at").
		Values(c.ID, c.Slug, c.Title, c.Summary, c.Content, c.IngestionType,
			c.SourceURL, c.Category, tags, c.Importance, c.Sentiment,
			mentions, c.Status, meta, c.CreatedAt).
		ToSql()
}

// buildAppendLog builds the processing log insert statement.
func buildAppendLog(l *ProcessingLog) (string, []interface{}, error) {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert("processing_logs").
		Columns("id", "content_id", "action", "status", "tools_affected",
			"duration_ms", "performed_by", "created_at").
		Values(l.ID, l.ContentID, l.Action, l.Status, l.ToolsAffected,
			l.DurationMs, l.PerformedBy, l.CreatedAt).
		ToSql()
}

// contentQuerier is the subset of *sql.DB and *sql.Tx the insert path
// needs, so direct and transactional inserts share one implementation.
type contentQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func insertContent(ctx context.Context, q contentQuerier, c *ContentItem) error {
	slug, err := resolveSlug(ctx, q, c.Slug)
	if err != nil {
		return err
	}
	c.Slug = slug
	query, args, err := buildInsertContent(c)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert content item: %w", err)
	}
	return nil
}

// resolveSlug picks the first free slug among base, base-2, base-3, and
// so on. Applies are serialized upstream, so the read-then-insert window
// is not raced in practice; the unique constraint on slug is the
// backstop.
func resolveSlug(ctx context.Context, q contentQuerier, base string) (string, error) {
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("slug").
		From("content_items").
		Where(sq.Or{sq.Eq{"slug": base}, sq.Like{"slug": base + "-%"}}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build slug query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("list slugs: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", fmt.Errorf("scan slug: %w", err)
		}
		taken[s] = true
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list slugs: %w", err)
	}
	return nextFreeSlug(base, taken), nil
}

// InsertContentInTx inserts a content item inside an existing
// transaction, disambiguating slug collisions the same way InsertContent
// does.
func InsertContentInTx(ctx context.Context, tx *sql.Tx, c *ContentItem) error {
	return insertContent(ctx, tx, c)
}

// AppendLogInTx appends a processing log record inside an existing
// transaction.
func AppendLogInTx(ctx context.Context, tx *sql.Tx, l *ProcessingLog) error {
	query, args, err := buildAppendLog(l)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}
