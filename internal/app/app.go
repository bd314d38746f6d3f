// Package app wires the l3vision components from configuration.
package app

import (
	"errors"

	"github.com/bmf87/l3vision/internal/auth"
	"github.com/bmf87/l3vision/internal/cache"
	"github.com/bmf87/l3vision/internal/chat"
	"github.com/bmf87/l3vision/internal/config"
	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/llm"
	"github.com/bmf87/l3vision/internal/normalize"
	"github.com/bmf87/l3vision/internal/observability"
	"github.com/bmf87/l3vision/internal/pdf"
	"github.com/bmf87/l3vision/internal/slides"
	"github.com/bmf87/l3vision/internal/web"
)

// Core holds the pieces shared by the server and the CLI commands.
type Core struct {
	Pipeline *normalize.Pipeline
	Model    *llm.Client
	Catalog  *llm.Catalog

	slides *slides.Client
}

// NewCore builds the normalization pipeline and the model client.
func NewCore(cfg *config.Config, logger *observability.Logger) (*Core, error) {
	catalog, err := llm.NewCatalog(cfg.Gateway.Models, cfg.Gateway.ProviderOrder, cfg.Gateway.DefaultModel)
	if err != nil {
		return nil, err
	}

	core := &Core{Catalog: catalog}

	// Without an API key slide decks fail fast with a collaborator error.
	var converter domain.SlideConverter
	if cfg.Slides.APIKey != "" {
		core.slides = slides.NewClient(slides.ClientOptions{
			APIKey:   cfg.Slides.APIKey,
			Endpoint: cfg.Slides.Endpoint,
			Timeout:  cfg.Slides.Timeout,
			Logger:   logger,
		})
		converter = core.slides
	} else {
		logger.Warn().Msg("slides api key not set, presentations cannot be converted")
	}

	core.Pipeline = normalize.New(pdf.NewRasterizer(), converter, PipelineOptions(cfg), logger)

	core.Model = llm.NewClient(llm.ClientOptions{
		APIKey:      cfg.Gateway.APIKey,
		BaseURL:     cfg.Gateway.BaseURL,
		AppName:     cfg.Gateway.AppName,
		AppURL:      cfg.Gateway.AppURL,
		Temperature: cfg.Gateway.Temperature,
		Timeout:     cfg.Gateway.Timeout,
		Logger:      logger,
	})

	return core, nil
}

// Close releases network clients.
func (c *Core) Close() error {
	if c.slides != nil {
		return c.slides.Close()
	}
	return nil
}

// PipelineOptions maps the conversion settings onto pipeline options.
func PipelineOptions(cfg *config.Config) normalize.Options {
	return normalize.Options{
		DPI:                      cfg.Conversion.DPI,
		MaxDimension:             cfg.Conversion.MaxDimension,
		Quality:                  cfg.Conversion.JPEGQuality,
		MaxSlideBytes:            cfg.Slides.MaxBytes,
		PreserveSinglePageAspect: cfg.Conversion.PreserveSinglePageAspect,
	}
}

// Server is the fully wired web application.
type Server struct {
	*Core
	Chat  *chat.Service
	Web   *web.Server
	auth  *auth.Authenticator
	cache cache.Client
}

// NewServer wires the session store, sign-in and HTTP handlers on top of
// the core components.
func NewServer(cfg *config.Config, logger *observability.Logger) (*Server, error) {
	core, err := NewCore(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := cache.New(cache.Options{
		Driver:     cfg.Session.Driver,
		MaxEntries: cfg.Session.MaxEntries,
		Redis: cache.RedisConfig{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
			PoolSize: cfg.Session.Redis.PoolSize,
			Prefix:   cfg.Session.Redis.Prefix,
		},
	})
	if err != nil {
		core.Close()
		return nil, domain.ConfigError("create session store", err)
	}

	authn, err := auth.New(auth.Options{
		Enabled:        cfg.Auth.Enabled,
		ClientID:       cfg.Auth.ClientID,
		ClientSecret:   cfg.Auth.ClientSecret,
		RedirectURL:    cfg.Auth.RedirectURL,
		HashKey:        cfg.Auth.CookieHashKey,
		BlockKey:       cfg.Auth.CookieBlockKey,
		AllowedDomains: cfg.Auth.AllowedDomains,
		SecureCookies:  cfg.Auth.SecureCookies,
		Logger:         logger,
	})
	if err != nil {
		store.Close()
		core.Close()
		return nil, err
	}

	svc := chat.NewService(
		chat.NewStore(store, cfg.Session.TTL, core.Catalog.Default().ID),
		core.Pipeline,
		core.Model,
		core.Catalog,
		logger,
	)

	srv, err := web.New(web.Options{
		Chat:           svc,
		Auth:           authn,
		Logger:         logger,
		AppName:        cfg.Gateway.AppName,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		authn.Close()
		store.Close()
		core.Close()
		return nil, err
	}

	return &Server{Core: core, Chat: svc, Web: srv, auth: authn, cache: store}, nil
}

// Close releases every client held by the server.
func (s *Server) Close() error {
	return errors.Join(s.auth.Close(), s.cache.Close(), s.Core.Close())
}
