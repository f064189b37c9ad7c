package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/attend/internal/domain/event"
	taskdomain "github.com/louisbranch/attend/internal/domain/task"
	"github.com/louisbranch/attend/internal/storage"
)

// parseEventLogURI extracts the journal filter from a URI of the form
// events://log?type=a,b&since=RFC3339&limit=n. All parameters are optional.
func parseEventLogURI(uri string) (storage.EventFilter, int, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return storage.EventFilter{}, 0, fmt.Errorf("invalid event log URI %q: %w", uri, err)
	}
	if parsed.Scheme != "events" {
		return storage.EventFilter{}, 0, fmt.Errorf("URI must start with %q", "events://")
	}

	query := parsed.Query()
	filter := storage.EventFilter{}

	if raw := query.Get("type"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			filter.Types = append(filter.Types, event.Type(name))
		}
	}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return storage.EventFilter{}, 0, fmt.Errorf("invalid since timestamp %q", raw)
		}
		filter.Since = &since
	}

	limit := defaultEventLogLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return storage.EventFilter{}, 0, fmt.Errorf("invalid limit %q", raw)
		}
		limit = n
	}
	return filter, limit, nil
}

// parseTaskListURI extracts the optional status filter from a URI of the form
// tasks://list?status=open.
func parseTaskListURI(uri string) (taskdomain.Status, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid task list URI %q: %w", uri, err)
	}
	if parsed.Scheme != "tasks" {
		return "", fmt.Errorf("URI must start with %q", "tasks://")
	}
	return taskdomain.Status(parsed.Query().Get("status")), nil
}
