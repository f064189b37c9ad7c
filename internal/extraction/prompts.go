package extraction

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an assistant that extracts structured information from user messages.

Analyze the message and extract actionable items in three categories:

1. TODOs: tasks, actions, or reminders the user wants to track
2. NOTES: information, insights, or facts to remember
3. TRACKS: ongoing things to monitor over time

Return a JSON object {"objects": [...]} where each object has:
- "type": one of "todo", "note", or "track"
- "title": a concise summary (under 100 chars)
- type-specific fields:
  todo: "description", "priority" (low|medium|high|urgent), "due_date" (ISO 8601 or null), "tags"
  note: "content", "tags"
  track: "description", "check_in_frequency" (daily|weekly|monthly|null), "tags"

Guidelines:
- Be conservative: only extract clear, explicit items
- Do not invent information not present in the message
- If nothing actionable is found, return {"objects": []}
- Prefer todos for action items, notes for information

Return only valid JSON, no commentary.`

// buildUserPrompt renders the per-message prompt, folding in optional
// context such as recent conversation history or user preferences.
func buildUserPrompt(message string, extra map[string]string) string {
	var context []string
	if history, ok := extra["conversation_history"]; ok && history != "" {
		context = append(context, "Previous conversation:\n"+history)
	}
	if prefs, ok := extra["user_preferences"]; ok && prefs != "" {
		context = append(context, "User preferences: "+prefs)
	}

	prompt := fmt.Sprintf("Extract structured objects from this message:\n\nMessage: %s\n", message)
	if len(context) > 0 {
		prompt += "\nContext:\n" + strings.Join(context, "\n") + "\n"
	}
	prompt += "\nReturn a JSON object of extracted objects following the schema."
	return prompt
}
