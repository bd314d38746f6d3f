package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmf87/l3vision/internal/config"
	"github.com/bmf87/l3vision/internal/observability"
)

func TestNewServer_Defaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Conversion.PreserveSinglePageAspect = true

	srv, err := NewServer(cfg, observability.Nop())
	require.NoError(t, err)
	defer srv.Close()

	assert.Equal(t, "google/gemini-3-pro-preview", srv.Catalog.Default().ID)

	rec := httptest.NewRecorder()
	srv.Web.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	opts := PipelineOptions(cfg)
	assert.Equal(t, 200, opts.DPI)
	assert.Equal(t, 1024, opts.MaxDimension)
	assert.Equal(t, int64(3*1024*1024), opts.MaxSlideBytes)
	assert.True(t, opts.PreserveSinglePageAspect)
}

func TestNewCore_BadCatalog(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.DefaultModel = "not/listed"

	_, err := NewCore(cfg, observability.Nop())
	assert.Error(t, err)
}

func TestNewServer_UnknownDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Session.Driver = "memcached"

	_, err := NewServer(cfg, observability.Nop())
	assert.Error(t, err)
}
