package dryrun

import (
	"context"
	"fmt"
	"time"

	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/snapshot"
	"github.com/aipulse/toolrank/internal/tool"
)

// ToolUpdate pairs an updated tool with the ScoreUpdatedAt value observed
// when the update was computed. The commit port enforces the optimistic
// check against it.
type ToolUpdate struct {
	Tool     *tool.Tool
	Expected time.Time
}

// CommitSet is everything one applied ingestion persists: the updated
// tool scores, the re-published snapshot, the content item, and the
// processing log record. A commit is all-or-nothing.
type CommitSet struct {
	Tools    []ToolUpdate
	Snapshot *snapshot.Snapshot
	Content  *article.ContentItem
	Log      *article.ProcessingLog
}

// CommitPort persists a CommitSet. Preview and apply run the identical
// computation; the injected port is the only difference between them.
type CommitPort interface {
	Commit(ctx context.Context, set *CommitSet) error
}

// NopCommit discards the commit set. Injected for previews, so the
// preview path is structurally incapable of writing.
type NopCommit struct{}

// Commit does nothing.
func (NopCommit) Commit(ctx context.Context, set *CommitSet) error { return nil }

// RepoCommit persists through the repository interfaces, one write per
// record. Atomicity comes from the apply serialization lock rather than
// a storage transaction, which is sufficient for the in-memory backends;
// Postgres deployments use TxCommit instead.
type RepoCommit struct {
	Tools     tool.Repository
	Snapshots snapshot.Repository
	Articles  article.Repository
}

// Commit writes every record in the set. Tool updates run first so an
// optimistic rejection aborts before anything else is written.
func (c *RepoCommit) Commit(ctx context.Context, set *CommitSet) error {
	for _, u := range set.Tools {
		if err := c.Tools.UpdateScores(ctx, u.Tool, u.Expected); err != nil {
			return fmt.Errorf("commit tool %s: %w", u.Tool.ID, err)
		}
	}
	if err := c.Snapshots.Publish(ctx, set.Snapshot); err != nil {
		return fmt.Errorf("commit snapshot %s: %w", set.Snapshot.Period, err)
	}
	if err := c.Articles.InsertContent(ctx, set.Content); err != nil {
		return fmt.Errorf("commit content item: %w", err)
	}
	if err := c.Articles.AppendLog(ctx, set.Log); err != nil {
		return fmt.Errorf("commit processing log: %w", err)
	}
	return nil
}
