package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient extracts objects through the OpenAI chat completions API with
// forced JSON output. Transport retries are delegated to the SDK.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewOpenAIClient constructs a client for the given API key and model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		client:      openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(3)),
		model:       model,
		maxTokens:   1000,
		temperature: 0.7,
	}
}

// Extract calls the model and parses its JSON answer into candidate objects.
// Responses that are not valid JSON yield an empty object list, not an error;
// only transport failures are surfaced.
func (c *OpenAIClient) Extract(ctx context.Context, text string, extra map[string]string) (Result, error) {
	userPrompt := buildUserPrompt(text, extra)
	prompt, err := json.Marshal(map[string]string{"system": systemPrompt, "user": userPrompt})
	if err != nil {
		return Result{}, err
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Result{}, fmt.Errorf("openai chat completion returned no choices")
	}
	content := completion.Choices[0].Message.Content

	return Result{
		Objects:     parseObjects(content),
		Confidence:  0.9,
		ModelUsed:   completion.Model,
		TokensUsed:  int(completion.Usage.TotalTokens),
		Prompt:      string(prompt),
		RawResponse: content,
	}, nil
}

// parseObjects tolerates the response shapes models actually produce: a bare
// array, {"objects": [...]} and its aliases, one object with type and title,
// or a single-key wrapper around either.
func parseObjects(content string) []map[string]any {
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil
	}

	switch value := parsed.(type) {
	case []any:
		return objectList(value)
	case map[string]any:
		for _, key := range []string{"objects", "extracted_items", "items"} {
			if candidate, ok := value[key]; ok {
				return candidateObjects(candidate)
			}
		}
		if _, hasType := value["type"]; hasType {
			if _, hasTitle := value["title"]; hasTitle {
				return []map[string]any{value}
			}
		}
		if len(value) == 1 {
			for _, only := range value {
				return candidateObjects(only)
			}
		}
	}
	return nil
}

func candidateObjects(candidate any) []map[string]any {
	switch value := candidate.(type) {
	case []any:
		return objectList(value)
	case map[string]any:
		return []map[string]any{value}
	}
	return nil
}

func objectList(items []any) []map[string]any {
	var out []map[string]any
	for _, item := range items {
		if object, ok := item.(map[string]any); ok {
			out = append(out, object)
		}
	}
	return out
}
