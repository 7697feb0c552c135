package model

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIModel implements ChatModel over OpenAI's Chat Completions API.
// Safe for concurrent use after creation.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates an adapter for the given API key and model name
// (e.g. "gpt-4o").
func NewOpenAIModel(apiKey, model string) (*OpenAIModel, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIModel{client: &client, model: model}, nil
}

// Name returns "openai".
func (p *OpenAIModel) Name() string { return "openai" }

// Complete implements ChatModel. Request.JSON enables the API's JSON object
// response format.
func (p *OpenAIModel) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return Response{}, classifyAPIError("openai", err)
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(req.System),
				},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(req.Prompt),
			},
		},
	})

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, classifyAPIError("openai", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, &ModelError{Code: "empty_response", Message: "OpenAI returned no choices"}
	}

	return Response{
		Text:       completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
		Duration:   time.Since(start),
		Provider:   p.Name(),
	}, nil
}
