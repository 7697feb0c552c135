// Package client provides the HTTP client for the internal platform APIs:
// conversation persistence, file retrieval, and audio reconstruction.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// Per-operation timeouts. Reconstruction runs speech models upstream and is
// given the longest budget.
const (
	JSONTimeout        = 90 * time.Second
	BytesTimeout       = 120 * time.Second
	ReconstructTimeout = 120 * time.Second
)

// Default endpoints for local development.
const (
	DefaultBaseURL        = "http://localhost:5010"
	DefaultGoogleAPIURL   = "http://localhost:5020"
	DefaultFileServiceURL = "http://localhost:5019"
)

// APIError reports a non-200 response from an internal API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client calls the internal platform APIs. All requests carry the static
// X-Api-Key header. Safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	apiKey         string
	baseURL        string
	googleAPIURL   string
	fileServiceURL string
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the main internal API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithGoogleAPIURL sets the audio reconstruction API base URL.
func WithGoogleAPIURL(u string) Option {
	return func(c *Client) { c.googleAPIURL = u }
}

// WithFileServiceURL sets the file service base URL.
func WithFileServiceURL(u string) Option {
	return func(c *Client) { c.fileServiceURL = u }
}

// WithHTTPClient overrides the underlying HTTP client (for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client with the given static API key.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("internal API key is not configured")
	}
	c := &Client{
		httpClient:     &http.Client{},
		apiKey:         apiKey,
		baseURL:        DefaultBaseURL,
		googleAPIURL:   DefaultGoogleAPIURL,
		fileServiceURL: DefaultFileServiceURL,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the main internal API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// PostJSON posts a JSON payload to endpoint and decodes the JSON response
// into out (skipped when out is nil).
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, JSONTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("internal API error", "endpoint", endpoint, "status", resp.StatusCode)
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetBytes downloads raw bytes from endpoint.
func (c *Client) GetBytes(ctx context.Context, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, BytesTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// SaveResponse is the persistence API result.
type SaveResponse struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

// SaveConversation persists a reconstructed transcript. A failed call is
// reported as a SaveResponse with Status "ERROR" rather than an error, so
// callers can treat persistence as best-effort.
func (c *Client) SaveConversation(ctx context.Context, conversationID, transcript, convType string) SaveResponse {
	endpoint := c.baseURL + "/api/internal/InternalRgConvTrs"
	payload := map[string]string{
		"convName":   conversationID,
		"transcribe": transcript,
		"type":       convType,
	}
	var out SaveResponse
	if err := c.PostJSON(ctx, endpoint, payload, &out); err != nil {
		c.logger.Error("save conversation failed", "conversation_id", conversationID, "error", err)
		return SaveResponse{Status: "ERROR"}
	}
	if out.Status == "" {
		out.Status = "OK"
	}
	return out
}

// Usage reports token consumption of an upstream AI call.
type Usage struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"costUsd"`
}

// ReconstructionResponse is the audio reconstruction API result.
type ReconstructionResponse struct {
	Files                   []string `json:"files"`
	ReconstructedTranscript string   `json:"reconstructedTranscript"`
	Usage                   Usage    `json:"usage"`
}

// Reconstruct downloads the inbound and outbound call recordings from the
// file service and submits them as a multipart request to the audio
// reconstruction API, producing a merged transcript.
func (c *Client) Reconstruct(ctx context.Context, location, inbound, outbound, tenantKey string) (ReconstructionResponse, error) {
	inboundBytes, err := c.GetBytes(ctx, fmt.Sprintf("%s/api/files/%s/%s", c.fileServiceURL, location, inbound))
	if err != nil {
		return ReconstructionResponse{}, fmt.Errorf("download inbound audio: %w", err)
	}
	outboundBytes, err := c.GetBytes(ctx, fmt.Sprintf("%s/api/files/%s/%s", c.fileServiceURL, location, outbound))
	if err != nil {
		return ReconstructionResponse{}, fmt.Errorf("download outbound audio: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ReconstructTimeout)
	defer cancel()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, file := range []struct {
		name string
		data []byte
	}{{inbound, inboundBytes}, {outbound, outboundBytes}} {
		part, err := writer.CreateFormFile("files", file.name)
		if err != nil {
			return ReconstructionResponse{}, fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(file.data); err != nil {
			return ReconstructionResponse{}, fmt.Errorf("write form file: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return ReconstructionResponse{}, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/Audio/reconstruct?tenant_key=%s", c.googleAPIURL, url.QueryEscape(tenantKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return ReconstructionResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ReconstructionResponse{}, fmt.Errorf("post reconstruct: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ReconstructionResponse{}, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out ReconstructionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ReconstructionResponse{}, fmt.Errorf("decode reconstruction: %w", err)
	}
	return out, nil
}
