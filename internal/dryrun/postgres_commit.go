package dryrun

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/snapshot"
	"github.com/aipulse/toolrank/internal/tool"
)

// TxCommit persists a CommitSet in a single serializable PostgreSQL
// transaction: tool score updates, the snapshot current-flag swap, the
// content item, and the processing log either all land or none do.
type TxCommit struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTxCommit creates a transactional commit port.
func NewTxCommit(db *sql.DB, logger *slog.Logger) *TxCommit {
	if logger == nil {
		logger = slog.Default()
	}
	return &TxCommit{db: db, logger: logger}
}

// Commit applies the full set atomically. An optimistic rejection on any
// tool rolls back the entire transaction.
func (c *TxCommit) Commit(ctx context.Context, set *CommitSet) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin apply transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			c.logger.Warn("failed to rollback apply transaction", "error", err)
		}
	}()

	for _, u := range set.Tools {
		if err := tool.UpdateScoresInTx(ctx, tx, u.Tool, u.Expected); err != nil {
			return fmt.Errorf("commit tool %s: %w", u.Tool.ID, err)
		}
	}
	if err := snapshot.PublishInTx(ctx, tx, set.Snapshot); err != nil {
		return fmt.Errorf("commit snapshot %s: %w", set.Snapshot.Period, err)
	}
	if err := article.InsertContentInTx(ctx, tx, set.Content); err != nil {
		return err
	}
	if err := article.AppendLogInTx(ctx, tx, set.Log); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply transaction: %w", err)
	}
	return nil
}
