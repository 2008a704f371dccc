// Package llm provides the generative backend used to answer questions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama-3.1-8b-instant"
)

// ErrEmptyCompletion is returned when the backend replies without usable text.
var ErrEmptyCompletion = errors.New("empty completion")

// CompletionRequest is a single system+user exchange.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Backend generates answers from prompts.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	retry      RetryConfig
}

// Config holds backend client configuration.
type Config struct {
	APIKey  string
	Model   string // Default: llama-3.1-8b-instant
	URL     string // Default: Groq chat completions
	Timeout time.Duration
	Retry   RetryConfig
}

// NewClient creates a new backend client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if cfg.URL == "" {
		cfg.URL = defaultURL
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		retry:      cfg.Retry.withDefaults(),
	}, nil
}

// ChatMessage represents a chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the API request structure.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// ChatResponse represents the API response structure.
type ChatResponse struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
	Error   *APIError    `json:"error,omitempty"`
}

// ChatChoice represents a single completion choice.
type ChatChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// APIError represents an API error body.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete sends the prompts and returns the first choice's trimmed content.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	reqBody := ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ChatResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
			return "", fmt.Errorf("API error: %s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return "", fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// Model returns the model being used.
func (c *Client) Model() string {
	return c.model
}

var _ Backend = (*Client)(nil)
