// Package narration synthesizes speech for segment text.
package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const defaultModel = "eleven_multilingual_v2"

// Narrator writes synthesized speech for text to dst.
type Narrator interface {
	Narrate(ctx context.Context, text, dst string) error
}

// TTSError is a non-2xx response from the speech endpoint.
type TTSError struct {
	StatusCode int
	Body       string
}

func (e *TTSError) Error() string {
	return fmt.Sprintf("speech synthesis failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// StreamingClient calls a streaming text-to-speech endpoint and copies
// audio to disk as it arrives.
type StreamingClient struct {
	baseURL    string
	apiKey     string
	voice      string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewStreamingClient(baseURL, apiKey, voice string, timeout time.Duration, logger *slog.Logger) *StreamingClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &StreamingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voice:   voice,
		model:   defaultModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (c *StreamingClient) Narrate(ctx context.Context, text, dst string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to narrate")
	}

	body, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       c.model,
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return fmt.Errorf("marshal speech request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", c.baseURL, url.PathEscape(c.voice))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TTSError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("stream audio: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close audio output: %w", closeErr)
	}
	if n == 0 {
		return fmt.Errorf("speech endpoint returned no audio")
	}

	c.logger.Info("narration synthesized",
		"voice", c.voice,
		"words", len(strings.Fields(text)),
		"bytes", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
