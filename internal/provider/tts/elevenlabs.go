package tts

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
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	elevenLabsModel          = "eleven_turbo_v2_5"

	// streamChunkSize matches the provider read granularity; chunks are
	// forwarded as soon as they fill or the stream ends.
	streamChunkSize = 4096
)

// ElevenLabsClient synthesizes speech with the turbo model for lowest
// latency.
type ElevenLabsClient struct {
	baseURL        string
	apiKey         string
	defaultVoiceID string
	httpClient     *http.Client
}

type ElevenLabsOption func(*ElevenLabsClient)

func WithElevenLabsBaseURL(u string) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithElevenLabsHTTPClient(h *http.Client) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.httpClient = h }
}

func NewElevenLabsClient(apiKey, defaultVoiceID string, opts ...ElevenLabsOption) *ElevenLabsClient {
	c := &ElevenLabsClient{
		baseURL:        defaultElevenLabsBaseURL,
		apiKey:         apiKey,
		defaultVoiceID: defaultVoiceID,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	LanguageCode  string         `json:"language_code,omitempty"`
	VoiceSettings map[string]any `json:"voice_settings"`
}

func (c *ElevenLabsClient) buildRequest(ctx context.Context, text, voiceID, lang, pathSuffix string) (*http.Request, error) {
	vid := voiceID
	if vid == "" {
		vid = c.defaultVoiceID
	}
	payload := synthesisRequest{
		Text:    text,
		ModelID: elevenLabsModel,
		VoiceSettings: map[string]any{
			"stability":         0.5,
			"similarity_boost":  0.8,
			"style":             0.3,
			"use_speaker_boost": true,
		},
	}
	if lang != "" && lang != "en" {
		payload.LanguageCode = lang
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/text-to-speech/"+vid+pathSuffix, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID, lang string) ([]byte, error) {
	req, err := c.buildRequest(ctx, text, voiceID, lang, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("elevenlabs: unexpected status %d: %s", resp.StatusCode, msg)
	}
	return io.ReadAll(resp.Body)
}

func (c *ElevenLabsClient) SynthesizeStream(ctx context.Context, text, voiceID, lang string) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		req, err := c.buildRequest(ctx, text, voiceID, lang, "/stream")
		if err != nil {
			errc <- err
			return
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			errc <- fmt.Errorf("elevenlabs: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			errc <- fmt.Errorf("elevenlabs: unexpected status %d: %s", resp.StatusCode, msg)
			return
		}

		buf := make([]byte, streamChunkSize)
		for {
			n, readErr := io.ReadFull(resp.Body, buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				return
			}
			if readErr != nil {
				errc <- fmt.Errorf("elevenlabs: stream read: %w", readErr)
				return
			}
		}
	}()

	return chunks, errc
}
