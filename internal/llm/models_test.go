package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/testutil"
)

func TestCatalog_Defaults(t *testing.T) {
	c, err := NewCatalog(testutil.Models(), []string{"llama", "google"}, "google/gemini-3-pro-preview")
	require.NoError(t, err)

	assert.Equal(t, []string{"llama", "google"}, c.Providers())
	assert.Equal(t, "google/gemini-3-pro-preview", c.Default().ID)
	assert.Equal(t, "google", c.Default().Provider)

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "meta-llama/llama-3.2-11b-vision-instruct", all[0].ID)
	assert.Equal(t, "meta-llama/llama-4-maverick", all[1].ID)
	assert.Equal(t, "google/gemini-3-pro-preview", all[2].ID)
}

func TestCatalog_Lookups(t *testing.T) {
	c, err := NewCatalog(testutil.Models(), nil, "")
	require.NoError(t, err)

	// Without an explicit order providers are alphabetical
	assert.Equal(t, []string{"google", "llama"}, c.Providers())
	assert.Equal(t, "google/gemini-3-pro-preview", c.Default().ID)

	llama, err := c.ByProvider("llama")
	require.NoError(t, err)
	assert.Len(t, llama, 2)

	_, err = c.ByProvider("openai")
	assert.ErrorIs(t, err, domain.ErrValidation)

	m, err := c.ByID("meta-llama/llama-4-maverick")
	require.NoError(t, err)
	assert.Equal(t, "llama", m.Provider)

	_, err = c.ByID("gpt-4o")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCatalog_Errors(t *testing.T) {
	_, err := NewCatalog(nil, nil, "")
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = NewCatalog(map[string][]string{"x": nil}, nil, "")
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = NewCatalog(testutil.Models(), nil, "missing/model")
	assert.ErrorIs(t, err, domain.ErrConfig)
}
