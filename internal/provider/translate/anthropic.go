package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicModel          = "claude-3-5-sonnet-20241022"
	anthropicVersion        = "2023-06-01"
)

// AnthropicClient serves as the fallback translator when the primary
// provider fails.
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type AnthropicOption func(*AnthropicClient)

func WithAnthropicBaseURL(u string) AnthropicOption {
	return func(c *AnthropicClient) { c.baseURL = strings.TrimRight(u, "/") }
}

func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		baseURL:    defaultAnthropicBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AnthropicClient) Name() string { return anthropicModel }

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *AnthropicClient) Translate(ctx context.Context, req Request) (string, error) {
	raw, err := json.Marshal(anthropicRequest{
		Model:       anthropicModel,
		System:      buildSystemPrompt(req),
		Messages:    []chatMessage{{Role: "user", Content: req.Text}},
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("anthropic: unexpected status %d: %s", resp.StatusCode, msg)
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty content")
	}
	return out.Content[0].Text, nil
}

// TranslateStream satisfies Translator by emitting the batch result as one
// delta. The fallback path does not need token-level streaming.
func (c *AnthropicClient) TranslateStream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	deltas := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		defer close(deltas)
		defer close(errc)
		text, err := c.Translate(ctx, req)
		if err != nil {
			errc <- err
			return
		}
		deltas <- text
	}()
	return deltas, errc
}
