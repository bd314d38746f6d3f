package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bmf87/l3vision/cmd/l3vision/ui"
	"github.com/bmf87/l3vision/internal/app"
	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/normalize"
	"github.com/bmf87/l3vision/internal/pdf"
)

var (
	convertOutput string
	convertDPI    int
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a document into the image sent to the model",
	Long: `Convert renders a PDF or presentation into one JPEG the way the chat does
before asking the model, and writes it to disk. Images are copied unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output file path (default: <input-name>.jpg)")
	convertCmd.Flags().IntVar(&convertDPI, "dpi", 0, "rendering resolution (default from config)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	if convertDPI != 0 {
		if err := pdf.NewValidator().ValidateDPI(convertDPI); err != nil {
			return err
		}
		cfg.Conversion.DPI = convertDPI
	}

	core, err := app.NewCore(cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Slides.Timeout+time.Minute)
	defer cancel()

	out, err := normalizeFile(ctx, core, args[0])
	if err != nil {
		return err
	}

	path := convertOutput
	if path == "" {
		path = defaultOutputPath(args[0], out.MediaType)
	}
	if err := os.WriteFile(path, out.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	ui.Success("Wrote %s (%dx%d, %s)", path, out.Width, out.Height, ui.FormatBytes(len(out.Data)))
	return nil
}

// normalizeFile reads path and runs it through the pipeline with a page
// progress bar.
func normalizeFile(ctx context.Context, core *app.Core, path string) (*domain.OutputImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	format, mediaType, err := normalize.Detect(data, normalize.DeclaredFromName(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %s", filepath.Base(path), domain.UserMessage(err))
	}
	ui.Info("Converting %s (%s, %s)", filepath.Base(path), format, ui.FormatBytes(len(data)))

	var bar *ui.ProgressBar
	pipeline := core.Pipeline.WithProgress(func(done, total int) {
		if bar == nil {
			bar = ui.NewProgressBar(int64(total), "Rendering pages")
		}
		bar.Set(int64(done), int64(total))
	})

	out, err := pipeline.Normalize(ctx, domain.DocumentBytes{
		Name:      filepath.Base(path),
		Data:      data,
		Format:    format,
		MediaType: mediaType,
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		logger.Debug().Err(err).Str("file", path).Msg("conversion failed")
		return nil, errors.New(domain.UserMessage(err))
	}
	return out, nil
}

func defaultOutputPath(input, mediaType string) string {
	ext := ".jpg"
	if mediaType != domain.MediaTypeJPEG {
		ext = "." + strings.TrimPrefix(mediaType, "image/")
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := filepath.Join(filepath.Dir(input), base+ext)
	if out == input {
		out = filepath.Join(filepath.Dir(input), base+"-converted"+ext)
	}
	return out
}
