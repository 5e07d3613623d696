package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/dotsetgreg/personakit/pkg/persona"
)

const deltaSystemPrompt = `You maintain a per-user persona profile. Given the
current profile JSON, the field reference, and a conversation transcript,
emit the minimal set of edits that bring the profile up to date.

Respond with JSON only, shaped as:
{"ops": [{"op": "set|append|remove|clear", "path": "/field", "value": ..., "confidence": 0.0-1.0, "evidence": "quote from the transcript"}]}

Rules:
- "set" replaces a field value; "append" adds one string to a list field;
  "remove" deletes a matching string from a list field; "clear" empties a
  field and carries no value.
- Paths start with "/" followed by a field name from the reference. Never
  invent fields.
- Only extract what the user states about themselves. Ignore the assistant's
  claims, hypotheticals, and questions.
- When the user retracts a liking, remove it from interests; when they state
  a dislike, append to dislikes.
- No edits to make: {"ops": []}.`

// OpenAI extracts deltas with a chat completion in JSON mode.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (o *OpenAI) ExtractDelta(ctx context.Context, profileJSON, fieldReference, transcript string) (persona.ProfileDelta, error) {
	if strings.TrimSpace(transcript) == "" {
		return persona.ProfileDelta{}, nil
	}

	var user strings.Builder
	user.WriteString("Current profile:\n")
	user.WriteString(profileJSON)
	user.WriteString("\n\nField reference:\n")
	user.WriteString(fieldReference)
	user.WriteString("\n\nConversation:\n")
	user.WriteString(transcript)

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(deltaSystemPrompt),
			openai.UserMessage(user.String()),
		},
		Model: o.model,
	}
	params.Temperature = openai.Float(0)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return persona.ProfileDelta{}, fmt.Errorf("delta completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return persona.ProfileDelta{}, fmt.Errorf("delta completion: empty response")
	}
	return ParseDelta(completion.Choices[0].Message.Content)
}
