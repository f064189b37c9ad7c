package extraction

import "strings"

var validPriorities = map[string]bool{
	"low": true, "medium": true, "high": true, "urgent": true,
}

var validFrequencies = map[string]bool{
	"daily": true, "weekly": true, "monthly": true,
}

// validateObject normalizes one candidate object, or reports it invalid.
// Unknown types and missing titles are rejected; optional fields are coerced
// into their canonical shapes so downstream consumers never see raw
// collaborator output.
func validateObject(raw map[string]any) (string, map[string]any, bool) {
	objectType, _ := raw["type"].(string)
	title := strings.TrimSpace(stringValue(raw["title"]))
	if title == "" {
		return "", nil, false
	}

	switch objectType {
	case ObjectTypeTodo:
		priority := strings.ToLower(stringValue(raw["priority"]))
		if !validPriorities[priority] {
			priority = "medium"
		}
		out := map[string]any{
			"type":     ObjectTypeTodo,
			"title":    title,
			"priority": priority,
			"tags":     stringList(raw["tags"]),
		}
		if description := stringValue(raw["description"]); description != "" {
			out["description"] = description
		}
		if due := stringValue(raw["due_date"]); due != "" {
			out["due_date"] = due
		}
		return ObjectTypeTodo, out, true

	case ObjectTypeNote:
		content := stringValue(raw["content"])
		if content == "" {
			content = title
		}
		return ObjectTypeNote, map[string]any{
			"type":    ObjectTypeNote,
			"title":   title,
			"content": content,
			"tags":    stringList(raw["tags"]),
		}, true

	case ObjectTypeTrack:
		out := map[string]any{
			"type":  ObjectTypeTrack,
			"title": title,
			"tags":  stringList(raw["tags"]),
		}
		if description := stringValue(raw["description"]); description != "" {
			out["description"] = description
		}
		if frequency := strings.ToLower(stringValue(raw["check_in_frequency"])); validFrequencies[frequency] {
			out["check_in_frequency"] = frequency
		}
		return ObjectTypeTrack, out, true
	}
	return "", nil, false
}

func stringValue(value any) string {
	s, _ := value.(string)
	return strings.TrimSpace(s)
}

func stringList(value any) []string {
	var out []string
	switch list := value.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
