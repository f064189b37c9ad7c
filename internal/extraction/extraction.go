// Package extraction turns free-form message text into validated structured
// objects. The collaborator behind the Client interface is untrusted: every
// candidate object passes explicit per-type validation before any event is
// appended, and both the prompt and the raw response are kept as artifacts.
package extraction

import "context"

// Object types the collaborator may produce.
const (
	ObjectTypeTodo  = "todo"
	ObjectTypeNote  = "note"
	ObjectTypeTrack = "track"
)

// Artifact types recorded around one extraction call.
const (
	ArtifactTypeLLMPrompt   = "llm_prompt"
	ArtifactTypeLLMResponse = "llm_response"
)

// Result is the raw outcome of one collaborator call, before validation.
type Result struct {
	// Objects are candidate objects as returned by the collaborator.
	Objects []map[string]any
	// Confidence is the collaborator's self-reported confidence in [0, 1].
	Confidence float64
	ModelUsed  string
	TokensUsed int
	// Prompt and RawResponse are recorded as artifact events for audit.
	Prompt      string
	RawResponse string
}

// Client extracts candidate objects from message text. Implementations do
// not touch the event journal; the service owns artifact and object events.
type Client interface {
	Extract(ctx context.Context, text string, extra map[string]string) (Result, error)
}
