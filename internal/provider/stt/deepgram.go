package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lingolink/realtime-core/internal/model"
)

const defaultDeepgramBaseURL = "https://api.deepgram.com/v1"

// DeepgramClient transcribes via Deepgram's batch listen endpoint with the
// nova-2 model.
type DeepgramClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type DeepgramOption func(*DeepgramClient)

func WithDeepgramBaseURL(u string) DeepgramOption {
	return func(c *DeepgramClient) { c.baseURL = u }
}

func WithDeepgramHTTPClient(h *http.Client) DeepgramOption {
	return func(c *DeepgramClient) { c.httpClient = h }
}

func NewDeepgramClient(apiKey string, opts ...DeepgramOption) *DeepgramClient {
	c := &DeepgramClient{
		baseURL:    defaultDeepgramBaseURL,
		apiKey:     apiKey,
		model:      "nova-2",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, lang string) (string, error) {
	params := url.Values{}
	params.Set("model", c.model)
	params.Set("smart_format", "true")
	params.Set("punctuate", "true")
	params.Set("diarize", "true")
	if lang == model.LangAuto || lang == "" {
		params.Set("detect_language", "true")
	} else {
		params.Set("language", lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/listen?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("deepgram: unexpected status %d: %s", resp.StatusCode, body)
	}

	var out deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return out.Results.Channels[0].Alternatives[0].Transcript, nil
}
