package projection

import (
	"context"
	"fmt"

	"github.com/louisbranch/attend/internal/storage"
)

// Rebuild truncates the task projection and replays the full journal through
// the handler registry. The truncate and the replay run inside one exclusive
// transaction, so a failed replay leaves the previous projection untouched
// and concurrent readers never see partial state. Identical journals produce
// identical projections, so the rebuilt state is byte-for-byte what
// incremental application would have left behind.
func Rebuild(ctx context.Context, events storage.EventStore, tasks storage.TaskRebuilder) (int, error) {
	if events == nil {
		return 0, fmt.Errorf("event store is not configured")
	}
	if tasks == nil {
		return 0, fmt.Errorf("task store is not configured")
	}

	stream, err := events.StreamEvents(ctx, storage.EventFilter{Types: HandledTypes()})
	if err != nil {
		return 0, fmt.Errorf("stream journal: %w", err)
	}

	applied := 0
	err = tasks.RebuildTasks(ctx, func(tx storage.TaskStore) error {
		applier := Applier{Tasks: tx}
		if err := tx.TruncateTasks(ctx); err != nil {
			return fmt.Errorf("truncate projection: %w", err)
		}
		for _, evt := range stream {
			if err := applier.Apply(ctx, evt); err != nil {
				return err
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}
