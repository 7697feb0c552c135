package model

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicMaxTokens bounds a response when the request does not.
const DefaultAnthropicMaxTokens = 4096

// AnthropicModel implements ChatModel over Anthropic's Messages API.
// Safe for concurrent use after creation.
type AnthropicModel struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicModel creates an adapter for the given API key and model name
// (e.g. "claude-3-5-sonnet-20241022").
func NewAnthropicModel(apiKey, model string) (*AnthropicModel, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicModel{client: &client, model: model}, nil
}

// Name returns "anthropic".
func (a *AnthropicModel) Name() string { return "anthropic" }

// Complete implements ChatModel. Anthropic has no enforced JSON mode, so
// Request.JSON is honored through prompt instructions supplied by the caller.
func (a *AnthropicModel) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifyAPIError("anthropic", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return Response{
		Text:       text,
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
		Duration:   time.Since(start),
		Provider:   a.Name(),
	}, nil
}
