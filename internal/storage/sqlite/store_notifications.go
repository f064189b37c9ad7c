package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/attend/internal/storage"
)

// LogNotification records that a notification was sent.
func (s *Store) LogNotification(ctx context.Context, record storage.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.NotificationType) == "" {
		return fmt.Errorf("notification type is required")
	}
	sentAt := record.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	return withWriteRetry(ctx, func() error {
		_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_log (notification_type, object_id, fingerprint, sent_at)
VALUES (?, ?, ?, ?)`,
			record.NotificationType, record.ObjectID, record.Fingerprint, toMillis(sentAt),
		)
		if err != nil {
			return fmt.Errorf("log notification: %w", err)
		}
		return nil
	})
}

// WasSentRecently reports whether a matching notification was logged within
// the window ending at now. An empty objectID or fingerprint matches any
// value for that field.
func (s *Store) WasSentRecently(ctx context.Context, notificationType, objectID, fingerprint string, within time.Duration, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	query := `
SELECT COUNT(*) FROM notification_log
WHERE notification_type = ? AND sent_at >= ?`
	args := []any{notificationType, toMillis(now.Add(-within))}
	if objectID != "" {
		query += " AND object_id = ?"
		args = append(args, objectID)
	}
	if fingerprint != "" {
		query += " AND fingerprint = ?"
		args = append(args, fingerprint)
	}

	var count int
	if err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check notification log: %w", err)
	}
	return count > 0, nil
}
