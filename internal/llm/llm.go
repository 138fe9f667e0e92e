package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds settings for an OpenAI-compatible endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	// JSONMode asks the endpoint for a JSON object response. Some local
	// servers reject the response_format field; disable it for those.
	JSONMode bool
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api *openai.Client
	cfg Config
}

// New creates a new LLM client.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Client{
		api: openai.NewClientWithConfig(config),
		cfg: cfg,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Ping checks that the endpoint answers a model listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// Complete sends a system and user prompt and returns the raw text of the
// first choice. The text is not parsed here.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if c.cfg.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ErrInvalidResponse{Err: errors.New("no choices in response")}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", resp.Model, "raw", raw, "total_tokens", resp.Usage.TotalTokens)
	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		return raw, &ErrInvalidResponse{Content: raw, Err: errors.New("response truncated at max tokens")}
	}
	return raw, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &ErrRateLimit{Err: err}
	case status >= 400 && status < 500:
		return &ErrRequestRejected{Status: status, Err: err}
	}
	return &ErrProviderUnavailable{Err: err}
}
