package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/platform/id"
	"github.com/louisbranch/attend/internal/storage"
)

// AppendEvent atomically appends an event and returns it with id, sequence,
// and normalized timestamp set. Appends never reject on content; each event
// is self-contained so no read-modify-write race exists on the journal.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if !evt.Type.IsValid() {
		return event.Event{}, fmt.Errorf("event type %q is not registered", evt.Type)
	}

	if strings.TrimSpace(evt.ID) == "" {
		newID, err := id.NewID()
		if err != nil {
			return event.Event{}, fmt.Errorf("assign event id: %w", err)
		}
		evt.ID = newID
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	metadataJSON := []byte("{}")
	if len(evt.Metadata) > 0 {
		encoded, err := json.Marshal(evt.Metadata)
		if err != nil {
			return event.Event{}, fmt.Errorf("marshal event metadata: %w", err)
		}
		metadataJSON = encoded
	}

	err := withWriteRetry(ctx, func() error {
		result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO events (event_id, event_type, timestamp, payload_json, metadata_json)
VALUES (?, ?, ?, ?, ?)`,
			evt.ID,
			string(evt.Type),
			toMillis(evt.Timestamp),
			evt.PayloadJSON,
			string(metadataJSON),
		)
		if err != nil {
			return err
		}
		seq, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("read event seq: %w", err)
		}
		evt.Seq = uint64(seq)
		return nil
	})
	if err != nil {
		if isConstraintError(err) {
			stored, lookupErr := s.GetEventByID(ctx, evt.ID)
			if lookupErr == nil {
				return stored, nil
			}
		}
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}

	return evt, nil
}

// GetEventByID loads one event by its identifier.
func (s *Store) GetEventByID(ctx context.Context, eventID string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(eventID) == "" {
		return event.Event{}, fmt.Errorf("event id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT seq, event_id, event_type, timestamp, payload_json, metadata_json
FROM events WHERE event_id = ?`, eventID)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event: %w", err)
	}
	return evt, nil
}

// StreamEvents returns matching events ordered by (timestamp, seq). The
// journal behaves as one logical ordered sequence regardless of physical
// partitioning.
func (s *Store) StreamEvents(ctx context.Context, filter storage.EventFilter) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `
SELECT seq, event_id, event_type, timestamp, payload_json, metadata_json
FROM events`
	var clauses []string
	var args []any
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, toMillis(*filter.Since))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, eventType := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(eventType))
		}
		clauses = append(clauses, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp ASC, seq ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stream events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt          event.Event
		seq          int64
		eventType    string
		timestamp    int64
		payloadJSON  []byte
		metadataJSON string
	)
	if err := row.Scan(&seq, &evt.ID, &eventType, &timestamp, &payloadJSON, &metadataJSON); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Type = event.Type(eventType)
	evt.Timestamp = fromMillis(timestamp)
	evt.PayloadJSON = payloadJSON
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &evt.Metadata); err != nil {
			return event.Event{}, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return evt, nil
}
