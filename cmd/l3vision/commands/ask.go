package commands

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bmf87/l3vision/cmd/l3vision/ui"
	"github.com/bmf87/l3vision/internal/app"
	"github.com/bmf87/l3vision/internal/domain"
)

var askModel string

var askCmd = &cobra.Command{
	Use:   "ask <file> <prompt>",
	Short: "Ask the vision model a question about a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model id (default from config)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	core, err := app.NewCore(cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	model := core.Catalog.Default()
	if askModel != "" {
		if model, err = core.Catalog.ByID(askModel); err != nil {
			return err
		}
	}

	ctx := cmd.Context()

	img, err := normalizeFile(ctx, core, args[0])
	if err != nil {
		return err
	}

	spin := ui.NewSpinner(fmt.Sprintf("Asking %s...", model.ID))
	spin.Start()
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(spin.Stop) }
	defer stop()

	chunks := make(chan string, 16)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for c := range chunks {
			stop()
			fmt.Fprint(os.Stdout, c)
		}
	}()

	_, err = core.Model.Ask(ctx, model.ID, *img, args[1], chunks)
	close(chunks)
	<-printed
	stop()

	if err != nil {
		logger.Debug().Err(err).Str("model", model.ID).Msg("ask failed")
		return errors.New(domain.UserMessage(err))
	}

	fmt.Fprintln(os.Stdout)
	return nil
}
