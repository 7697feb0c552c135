package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGoogleModel is the Gemini model used when none is configured.
const DefaultGoogleModel = "gemini-1.5-flash"

// GoogleModel implements ChatModel over Google's Gemini API. Callers should
// Close it when done to release the underlying gRPC connection.
type GoogleModel struct {
	client *genai.Client
	model  string
}

// NewGoogleModel creates an adapter for the given API key and model name.
// An empty model falls back to DefaultGoogleModel.
func NewGoogleModel(ctx context.Context, apiKey, model string) (*GoogleModel, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		model = DefaultGoogleModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	return &GoogleModel{client: client, model: model}, nil
}

// Close releases the underlying client.
func (g *GoogleModel) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Name returns "google".
func (g *GoogleModel) Name() string { return "google" }

// Complete implements ChatModel. Request.JSON sets the response MIME type to
// application/json so Gemini returns parseable output.
func (g *GoogleModel) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	gm := g.client.GenerativeModel(g.model)
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.MaxTokens > 0 {
		tokens := int32(req.MaxTokens)
		gm.MaxOutputTokens = &tokens
	}
	if req.JSON {
		gm.ResponseMIMEType = "application/json"
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return Response{}, classifyAPIError("google", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{}, &ModelError{Code: "empty_response", Message: "Gemini returned no candidates"}
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return Response{
		Text:       text,
		TokensUsed: tokens,
		Duration:   time.Since(start),
		Provider:   g.Name(),
	}, nil
}
