//go:build integration

package app

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmf87/l3vision/internal/config"
	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/observability"
	"github.com/bmf87/l3vision/internal/testutil"
)

func init() {
	// Load .env file for testing
	_ = godotenv.Load("../../.env")
}

// TestDocumentToAnswer runs a generated two-page PDF through the pipeline and
// asks the live model about it.
func TestDocumentToAnswer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.APIKey = os.Getenv("OPENROUTER_API_KEY")
	if cfg.Gateway.APIKey == "" {
		t.Skip("OPENROUTER_API_KEY not set")
	}
	if m := os.Getenv("LLM_MODEL"); m != "" {
		cfg.Gateway.DefaultModel = m
	}

	core, err := NewCore(cfg, observability.Nop())
	require.NoError(t, err)
	defer core.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	doc := testutil.PDF(t, 72,
		testutil.PageSpec{Width: 400, Height: 300, Fill: testutil.Red},
		testutil.PageSpec{Width: 400, Height: 300, Fill: testutil.Blue},
	)

	img, err := core.Pipeline.Normalize(ctx, domain.DocumentBytes{Name: "colors.pdf", Data: doc, Format: domain.PDFPage})
	require.NoError(t, err)
	assert.Equal(t, 1024, img.Width)
	assert.InDelta(t, 1536, img.Height, 2)

	chunks := make(chan string, 64)
	var streamed strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range chunks {
			streamed.WriteString(c)
		}
	}()

	answer, err := core.Model.Ask(ctx, core.Catalog.Default().ID, *img, "Which two colors fill this image, top to bottom?", chunks)
	close(chunks)
	<-done
	require.NoError(t, err)

	assert.NotEmpty(t, answer)
	assert.Equal(t, answer, streamed.String())
	t.Logf("answer: %s", answer)
}
