package sqlite

import (
	"context"
	"fmt"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/storage"
)

// RebuildTasks runs fn against a task store scoped to one exclusive write
// transaction. BEGIN IMMEDIATE takes the write lock before the replay starts,
// and nothing commits until fn returns nil, so concurrent readers see either
// the old projection or the fully rebuilt one.
func (s *Store) RebuildTasks(ctx context.Context, fn func(storage.TaskStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if fn == nil {
		return fmt.Errorf("rebuild callback is required")
	}

	conn, err := s.sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire rebuild connection: %w", err)
	}
	defer conn.Close()

	if err := withWriteRetry(ctx, func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		return err
	}); err != nil {
		return fmt.Errorf("begin rebuild transaction: %w", err)
	}

	if err := fn(&taskTx{conn: conn}); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit rebuild transaction: %w", err)
	}
	return nil
}

// taskTx is the rebuild-scoped task store. All statements run on the single
// connection holding the open transaction; the write lock is already held,
// so there is no retry layer.
type taskTx struct {
	conn querier
}

func (t *taskTx) UpsertTask(ctx context.Context, row task.Task) error {
	return upsertTask(ctx, t.conn, row)
}

func (t *taskTx) GetTask(ctx context.Context, taskID string) (task.Task, error) {
	return getTask(ctx, t.conn, taskID)
}

func (t *taskTx) GetTaskBySourceRef(ctx context.Context, source event.SourceType, sourceRef string) (task.Task, error) {
	return getTaskBySourceRef(ctx, t.conn, source, sourceRef)
}

func (t *taskTx) ListTasks(ctx context.Context) ([]task.Task, error) {
	return listTasks(ctx, t.conn)
}

func (t *taskTx) CountActiveInDedupGroup(ctx context.Context, dedupGroupID string) (int, error) {
	return countActiveInDedupGroup(ctx, t.conn, dedupGroupID)
}

func (t *taskTx) TruncateTasks(ctx context.Context) error {
	return truncateTasks(ctx, t.conn)
}
