// Package llm wraps a chat-completion model for correcting post text and
// shortening titles.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	requestTimeout = 90 * time.Second
	maxTitleChars  = 20
)

const correctPrompt = `Correct the spelling, grammar and punctuation of the following story so it reads naturally when spoken aloud.
Expand abbreviations such as AITA, TIFU, WIBTA, BF, GF, MIL into words.
Keep the meaning, the first-person voice and the paragraphing. Do not add commentary, a title or quotes.
Return only the corrected story.`

const shortenPrompt = `Rewrite the following post title as a short, catchy video title of at most %d characters.
Keep the key subject. Do not use hashtags, emojis or surrounding quotes.`

// ShortTitle is the structured response for title shortening.
type ShortTitle struct {
	Title string `json:"title" jsonschema_description:"The shortened video title"`
}

// GenerateSchema reflects T into an inline JSON schema suitable for strict
// structured output.
func GenerateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var shortTitleSchema = GenerateSchema[ShortTitle]()

// Client corrects text and shortens titles through a chat-completion API.
type Client struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewClient builds a client. An empty baseURL uses the provider default.
func NewClient(apiKey, model, baseURL string, logger *slog.Logger, opts ...option.RequestOption) *Client {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &Client{
		client: openai.NewClient(clientOpts...),
		model:  model,
		logger: logger,
	}
}

// Correct returns a spoken-ready rewrite of text.
func (c *Client) Correct(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty text")
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(correctPrompt),
			openai.UserMessage(text),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("correct text: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("correct text: no choices returned")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("correct text: empty response (finish reason %q)", resp.Choices[0].FinishReason)
	}
	c.logger.Debug("text corrected", "in_chars", len(text), "out_chars", len(out))
	return out, nil
}

// ShortenTitle returns a short video title for title.
func (c *Client) ShortenTitle(ctx context.Context, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", errors.New("empty title")
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "short_title",
		Description: openai.String("A shortened video title"),
		Schema:      shortTitleSchema,
		Strict:      openai.Bool(true),
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(shortenPrompt, maxTitleChars)),
			openai.UserMessage(title),
		},
		Model: openai.ChatModel(c.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("shorten title: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("shorten title: no choices returned")
	}

	raw := resp.Choices[0].Message.Content
	var parsed ShortTitle
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("shorten title: parse response: %w", err)
	}
	short := strings.Trim(strings.TrimSpace(parsed.Title), `"`)
	if short == "" {
		return "", errors.New("shorten title: empty title returned")
	}
	return short, nil
}

// ErrNotConfigured is returned by Unconfigured.
var ErrNotConfigured = errors.New("language model not configured")

// Unconfigured stands in for Client when no API key is set. Callers fall
// back to the unmodified text.
type Unconfigured struct{}

func (Unconfigured) Correct(ctx context.Context, text string) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) ShortenTitle(ctx context.Context, title string) (string, error) {
	return "", ErrNotConfigured
}
