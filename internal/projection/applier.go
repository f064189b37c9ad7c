// Package projection applies event journal entries to the derived task
// projection. The projection is never mutated outside this package: replay of
// the same journal always produces the same rows.
package projection

import (
	"context"
	"fmt"

	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/storage"
)

// Applier applies event journal entries to the projection store.
type Applier struct {
	// Tasks writes task projection rows.
	Tasks storage.TaskStore
}

// Apply routes one event through the handler registry. Events with no
// registered handler are skipped; they carry no projection state.
func (a Applier) Apply(ctx context.Context, evt event.Event) error {
	handler, ok := handlers[evt.Type]
	if !ok {
		return nil
	}
	if a.Tasks == nil {
		return fmt.Errorf("task store is not configured")
	}
	if err := handler(a, ctx, evt); err != nil {
		return fmt.Errorf("apply %s event %s: %w", evt.Type, evt.ID, err)
	}
	return nil
}
