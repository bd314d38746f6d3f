// Package commands implements the l3vision CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bmf87/l3vision/cmd/l3vision/ui"
	"github.com/bmf87/l3vision/internal/config"
	"github.com/bmf87/l3vision/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "l3vision",
	Short: "Ask a vision model questions about images, PDFs and presentations",
	Long: `l3vision converts uploaded documents into a single model-ready JPEG and
asks a vision-language model about them, from a web chat or the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(noColor)

		path := cfgFile
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}

		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger = newLogger(cmd)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// newLogger uses the configured logger for the server. The one-shot
// commands log to stderr on the console and stay quiet unless verbose.
func newLogger(cmd *cobra.Command) *observability.Logger {
	if cmd.Name() == "serve" {
		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		return observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      cfg.Observability.LogFormat,
			ServiceName: cfg.Observability.ServiceName,
		})
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName,
	})
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
