package projection

import (
	"context"
	"sort"

	"github.com/louisbranch/attend/internal/domain/event"
)

// applyFunc applies one event to the projection.
type applyFunc func(Applier, context.Context, event.Event) error

// handlers maps each projection-bearing event type to its apply function.
// Every other event type is audit material only.
var handlers = map[event.Type]applyFunc{
	event.TypeObjectExtracted: func(a Applier, ctx context.Context, evt event.Event) error {
		return a.applyObjectExtracted(ctx, evt)
	},
	event.TypeDecisionRecorded: func(a Applier, ctx context.Context, evt event.Event) error {
		return a.applyDecisionRecorded(ctx, evt)
	},
}

// HandledTypes returns the sorted list of event types the projection consumes.
func HandledTypes() []event.Type {
	types := make([]event.Type, 0, len(handlers))
	for t := range handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return string(types[i]) < string(types[j])
	})
	return types
}
