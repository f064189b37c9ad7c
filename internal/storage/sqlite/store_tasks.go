package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/storage"
)

// querier is the common query surface of *sql.DB and *sql.Conn. Task-row SQL
// runs through it so the same statements serve the store and the rebuild
// transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UpsertTask writes one task projection row keyed by id.
func (s *Store) UpsertTask(ctx context.Context, row task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return withWriteRetry(ctx, func() error {
		return upsertTask(ctx, s.sqlDB, row)
	})
}

// GetTask loads one task row by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (task.Task, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, err
	}
	if s == nil || s.sqlDB == nil {
		return task.Task{}, fmt.Errorf("storage is not configured")
	}
	return getTask(ctx, s.sqlDB, taskID)
}

// GetTaskBySourceRef resolves the (source, source_ref) idempotency key.
func (s *Store) GetTaskBySourceRef(ctx context.Context, source event.SourceType, sourceRef string) (task.Task, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, err
	}
	if s == nil || s.sqlDB == nil {
		return task.Task{}, fmt.Errorf("storage is not configured")
	}
	return getTaskBySourceRef(ctx, s.sqlDB, source, sourceRef)
}

// ListTasks returns all task rows ordered by created_at, id.
func (s *Store) ListTasks(ctx context.Context) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return listTasks(ctx, s.sqlDB)
}

// CountActiveInDedupGroup counts non-terminal tasks sharing a dedup group.
func (s *Store) CountActiveInDedupGroup(ctx context.Context, dedupGroupID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	return countActiveInDedupGroup(ctx, s.sqlDB, dedupGroupID)
}

// TruncateTasks clears the task projection ahead of a full rebuild.
func (s *Store) TruncateTasks(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return withWriteRetry(ctx, func() error {
		return truncateTasks(ctx, s.sqlDB)
	})
}

func upsertTask(ctx context.Context, q querier, row task.Task) error {
	if strings.TrimSpace(row.ID) == "" {
		return fmt.Errorf("task id is required")
	}

	labelsJSON, err := json.Marshal(orEmptySlice(row.Labels))
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	blockedByJSON, err := json.Marshal(orEmptySlice(row.BlockedBy))
	if err != nil {
		return fmt.Errorf("marshal blocked_by: %w", err)
	}
	explanations := row.Explanations
	if explanations == nil {
		explanations = []task.Explanation{}
	}
	explanationsJSON, err := json.Marshal(explanations)
	if err != nil {
		return fmt.Errorf("marshal explanations: %w", err)
	}

	_, err = q.ExecContext(ctx, `
INSERT INTO tasks (
    task_id, title, body, status, priority,
    due_at, do_not_start_before, created_at, updated_at, completed_at,
    source, source_ref, dedup_group_id, labels_json, project,
    blocked_by_json, explanations_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (task_id) DO UPDATE SET
    title = excluded.title,
    body = excluded.body,
    status = excluded.status,
    priority = excluded.priority,
    due_at = excluded.due_at,
    do_not_start_before = excluded.do_not_start_before,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at,
    completed_at = excluded.completed_at,
    source = excluded.source,
    source_ref = excluded.source_ref,
    dedup_group_id = excluded.dedup_group_id,
    labels_json = excluded.labels_json,
    project = excluded.project,
    blocked_by_json = excluded.blocked_by_json,
    explanations_json = excluded.explanations_json`,
		row.ID,
		row.Title,
		row.Body,
		string(row.Status),
		string(row.Priority),
		toNullMillis(row.DueAt),
		toNullMillis(row.DoNotStartBefore),
		toMillis(row.CreatedAt),
		toMillis(row.UpdatedAt),
		toNullMillis(row.CompletedAt),
		string(row.Source),
		row.SourceRef,
		row.DedupGroupID,
		string(labelsJSON),
		row.Project,
		string(blockedByJSON),
		string(explanationsJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

func getTask(ctx context.Context, q querier, taskID string) (task.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return task.Task{}, fmt.Errorf("task id is required")
	}
	row := q.QueryRowContext(ctx, taskSelect+" WHERE task_id = ?", taskID)
	return scanTaskRow(row)
}

func getTaskBySourceRef(ctx context.Context, q querier, source event.SourceType, sourceRef string) (task.Task, error) {
	row := q.QueryRowContext(ctx, taskSelect+" WHERE source = ? AND source_ref = ?", string(source), sourceRef)
	return scanTaskRow(row)
}

func listTasks(ctx context.Context, q querier) ([]task.Task, error) {
	rows, err := q.QueryContext(ctx, taskSelect+" ORDER BY created_at ASC, task_id ASC")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		row, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func countActiveInDedupGroup(ctx context.Context, q querier, dedupGroupID string) (int, error) {
	if strings.TrimSpace(dedupGroupID) == "" {
		return 0, nil
	}

	var count int
	err := q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM tasks
WHERE dedup_group_id = ? AND status NOT IN (?, ?)`,
		dedupGroupID, string(task.StatusDone), string(task.StatusCancelled),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count dedup group: %w", err)
	}
	return count, nil
}

func truncateTasks(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("truncate tasks: %w", err)
	}
	return nil
}

const taskSelect = `
SELECT task_id, title, body, status, priority,
       due_at, do_not_start_before, created_at, updated_at, completed_at,
       source, source_ref, dedup_group_id, labels_json, project,
       blocked_by_json, explanations_json
FROM tasks`

func scanTaskRow(row *sql.Row) (task.Task, error) {
	result, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return task.Task{}, storage.ErrNotFound
		}
		return task.Task{}, fmt.Errorf("get task: %w", err)
	}
	return result, nil
}

func scanTask(row rowScanner) (task.Task, error) {
	var (
		result           task.Task
		status           string
		priority         string
		dueAt            sql.NullInt64
		doNotStartBefore sql.NullInt64
		createdAt        int64
		updatedAt        int64
		completedAt      sql.NullInt64
		source           string
		labelsJSON       string
		blockedByJSON    string
		explanationsJSON string
	)
	if err := row.Scan(
		&result.ID, &result.Title, &result.Body, &status, &priority,
		&dueAt, &doNotStartBefore, &createdAt, &updatedAt, &completedAt,
		&source, &result.SourceRef, &result.DedupGroupID, &labelsJSON, &result.Project,
		&blockedByJSON, &explanationsJSON,
	); err != nil {
		return task.Task{}, err
	}

	result.Status = task.Status(status)
	result.Priority = task.Priority(priority)
	result.DueAt = fromNullMillis(dueAt)
	result.DoNotStartBefore = fromNullMillis(doNotStartBefore)
	result.CreatedAt = fromMillis(createdAt)
	result.UpdatedAt = fromMillis(updatedAt)
	result.CompletedAt = fromNullMillis(completedAt)
	result.Source = event.SourceType(source)

	if err := json.Unmarshal([]byte(labelsJSON), &result.Labels); err != nil {
		return task.Task{}, fmt.Errorf("unmarshal labels: %w", err)
	}
	if err := json.Unmarshal([]byte(blockedByJSON), &result.BlockedBy); err != nil {
		return task.Task{}, fmt.Errorf("unmarshal blocked_by: %w", err)
	}
	if err := json.Unmarshal([]byte(explanationsJSON), &result.Explanations); err != nil {
		return task.Task{}, fmt.Errorf("unmarshal explanations: %w", err)
	}
	if len(result.Labels) == 0 {
		result.Labels = nil
	}
	if len(result.BlockedBy) == 0 {
		result.BlockedBy = nil
	}
	if len(result.Explanations) == 0 {
		result.Explanations = nil
	}
	return result, nil
}

func orEmptySlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
