package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bmf87/l3vision/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web chat server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("session_driver", cfg.Session.Driver).
		Bool("auth", cfg.Auth.Enabled).
		Str("default_model", cfg.Gateway.DefaultModel).
		Msg("Starting l3vision server")

	if !cfg.Conversion.PreserveSinglePageAspect {
		logger.Warn().
			Int("max_dimension", cfg.Conversion.MaxDimension).
			Msg("single-page documents are resized to a square; set conversion.preserve_single_page_aspect to keep their aspect ratio")
	}
	if cfg.Gateway.APIKey == "" {
		logger.Warn().Msg("OPENROUTER_API_KEY is not set, questions will fail")
	}

	application, err := app.NewServer(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      application.Web.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt or error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server error")
			serveErr = err
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
	return serveErr
}
