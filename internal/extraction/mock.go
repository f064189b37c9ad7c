package extraction

import (
	"context"
	"encoding/json"
	"strings"
)

// MockClient is a deterministic, network-free collaborator. It simulates
// extraction with keyword detection and is the default client, so the whole
// pipeline works without credentials.
type MockClient struct {
	// Responses maps a lowercase substring to canned objects returned when
	// the message contains it. Checked before keyword detection.
	Responses map[string][]map[string]any

	calls int
}

var todoKeywords = []string{"todo", "task", "remind me", "need to", "should"}
var noteKeywords = []string{"note", "remember", "important", "fyi"}
var trackKeywords = []string{"track", "monitor", "watch", "keep an eye"}

// Extract detects objects by keyword. The title is the first sentence, or
// the first 100 characters when the message has no period.
func (m *MockClient) Extract(_ context.Context, text string, extra map[string]string) (Result, error) {
	m.calls++
	lower := strings.ToLower(text)

	var objects []map[string]any
	matched := false
	for pattern, response := range m.Responses {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			objects = append(objects, response...)
			matched = true
		}
	}

	if !matched {
		title := mockTitle(text)
		if containsAny(lower, todoKeywords) {
			todo := map[string]any{
				"type":     ObjectTypeTodo,
				"title":    title,
				"priority": mockPriority(lower),
				"tags":     []string{},
			}
			if len(text) > len(title) {
				todo["description"] = text
			}
			objects = append(objects, todo)
		}
		if containsAny(lower, noteKeywords) {
			objects = append(objects, map[string]any{
				"type":    ObjectTypeNote,
				"title":   title,
				"content": text,
				"tags":    []string{},
			})
		}
		if containsAny(lower, trackKeywords) {
			objects = append(objects, map[string]any{
				"type":        ObjectTypeTrack,
				"title":       title,
				"description": text,
				"tags":        []string{},
			})
		}
	}

	confidence := 0.0
	if len(objects) > 0 {
		confidence = 0.95
	}
	raw, err := json.Marshal(map[string]any{"objects": objects, "mock": true})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Objects:     objects,
		Confidence:  confidence,
		ModelUsed:   "mock-llm",
		TokensUsed:  len(strings.Fields(text)) * 2,
		Prompt:      systemPrompt + "\n\n" + buildUserPrompt(text, extra),
		RawResponse: string(raw),
	}, nil
}

func mockTitle(text string) string {
	if idx := strings.Index(text, "."); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	if len(text) > 100 {
		return text[:100]
	}
	return text
}

func mockPriority(lower string) string {
	switch {
	case strings.Contains(lower, "urgent") || strings.Contains(lower, "asap"):
		return "urgent"
	case strings.Contains(lower, "important") || strings.Contains(lower, "high priority"):
		return "high"
	case strings.Contains(lower, "low priority") || strings.Contains(lower, "when you have time"):
		return "low"
	}
	return "medium"
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
