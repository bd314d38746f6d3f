// Package llm talks to vision-capable chat models through the OpenRouter API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/observability"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	defaultAppName = "VQA Chatbot"
)

// Client handles communication with OpenRouter API
type Client struct {
	apiKey      string
	baseURL     string
	appName     string
	appURL      string
	temperature float64
	httpClient  *http.Client
	retry       *RetryConfig
	logger      *observability.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	APIKey      string
	BaseURL     string
	AppName     string
	AppURL      string
	Temperature float64
	Timeout     time.Duration
	Retry       *RetryConfig
	Logger      *observability.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

// Response represents the API response structure
type Response struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError is the error object OpenRouter embeds in responses.
type APIError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewClient creates a new LLM client
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.AppName == "" {
		opts.AppName = defaultAppName
	}
	if opts.Retry == nil {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}

	return &Client{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		appName:     opts.AppName,
		appURL:      opts.AppURL,
		temperature: opts.Temperature,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		retry:       opts.Retry,
		logger:      opts.Logger.WithOperation("vision_model"),
	}
}

// Ask sends the image and the user's question to model and streams the
// answer. Chunks are forwarded to chunkCh when it is non-nil; the caller owns
// the channel and must keep draining it until Ask returns.
func (c *Client) Ask(ctx context.Context, model string, img domain.OutputImage, prompt string, chunkCh chan<- string) (string, error) {
	if c.apiKey == "" {
		return "", domain.ConfigError("OpenRouter API key is not set", nil)
	}
	if strings.TrimSpace(model) == "" {
		return "", domain.ValidationError("model is required", nil)
	}

	req := c.buildRequest(model, img, prompt)

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.APIError("Failed to marshal request", err)
	}

	c.logger.WithContext(ctx).Info().
		Str("model", model).
		Int("est_tokens", EstimateTokens(req.Messages[0])).
		Float64("image_kb", float64(len(img.Data))/1024).
		Msg("sending vision request")

	start := time.Now()
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		// Fresh body reader for each attempt
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("HTTP-Referer", c.appURL)
		httpReq.Header.Set("X-Title", c.appName)

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		if domain.TypeOf(err) != "" {
			return "", err
		}
		return "", domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
	}

	answer, err := NewStreamParser(resp.Body).ParseAll(chunkCh)
	if err != nil {
		return "", domain.APIError("Failed to parse stream", err)
	}

	c.logger.WithContext(ctx).Info().
		Str("model", model).
		Int("answer_chars", len(answer)).
		Dur("elapsed", time.Since(start)).
		Msg("vision request complete")

	return answer, nil
}

// buildRequest constructs the API request with the image
func (c *Client) buildRequest(model string, img domain.OutputImage, prompt string) *Request {
	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{
				Type: "text",
				Text: BuildPrompt(prompt),
			},
			{
				Type: "image_url",
				ImageURL: &ImageURL{
					URL: img.DataURI(),
				},
			},
		},
	}

	return &Request{
		Model:       model,
		Messages:    []Message{msg},
		Stream:      true,
		Temperature: c.temperature,
	}
}
