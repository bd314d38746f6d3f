// Package slides converts presentation decks to PDF through the Cloudmersive
// document conversion API.
package slides

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"resty.dev/v3"

	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/observability"
)

const (
	DefaultEndpoint = "https://api.cloudmersive.com/convert/pptx/to/pdf"

	// MaxDeckBytes is the largest deck the conversion API accepts.
	MaxDeckBytes = 3 * 1024 * 1024
)

// ClientOptions configures the conversion client.
type ClientOptions struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	Logger   *observability.Logger
}

// Client implements domain.SlideConverter
type Client struct {
	client   *resty.Client
	endpoint string
	logger   *observability.Logger
}

// NewClient creates a conversion client. Requests are never retried: a
// failed conversion fails the invocation.
func NewClient(opts ClientOptions) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}

	client := resty.New().
		SetRetryCount(0).
		SetTimeout(opts.Timeout).
		SetHeader("Apikey", opts.APIKey)

	return &Client{
		client:   client,
		endpoint: opts.Endpoint,
		logger:   opts.Logger.WithOperation("slide_convert"),
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ConvertToPDF uploads the deck and returns the PDF bytes.
func (c *Client) ConvertToPDF(ctx context.Context, deck []byte) ([]byte, error) {
	start := time.Now()

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/octet-stream").
		SetFileReader("inputFile", "deck.pptx", bytes.NewReader(deck)).
		Post(c.endpoint)
	if err != nil {
		return nil, domain.CollaboratorError("slide conversion request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.CollaboratorError("failed to read slide conversion response", err)
	}

	if resp.IsError() {
		return nil, domain.CollaboratorError(
			fmt.Sprintf("slide conversion returned status %d: %s", resp.StatusCode(), truncate(body, 200)), nil)
	}

	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		return nil, domain.CollaboratorError("slide conversion returned a non-PDF payload", nil)
	}

	c.logger.WithContext(ctx).Info().
		Int("deck_bytes", len(deck)).
		Int("pdf_bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("converted slide deck")

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
