package commands

import (
	"github.com/spf13/cobra"

	"github.com/bmf87/l3vision/cmd/l3vision/ui"
	"github.com/bmf87/l3vision/internal/llm"
)

var modelsProvider string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the selectable vision models",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().StringVarP(&modelsProvider, "provider", "p", "", "only list this provider's models")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	catalog, err := llm.NewCatalog(cfg.Gateway.Models, cfg.Gateway.ProviderOrder, cfg.Gateway.DefaultModel)
	if err != nil {
		return err
	}

	models := catalog.All()
	if modelsProvider != "" {
		if models, err = catalog.ByProvider(modelsProvider); err != nil {
			return err
		}
	}

	rows := make([][]string, 0, len(models))
	for _, m := range models {
		def := ""
		if m.ID == catalog.Default().ID {
			def = "*"
		}
		rows = append(rows, []string{m.Provider, m.ID, def})
	}

	ui.Section("Vision Models")
	ui.Table([]string{"Provider", "Model", "Default"}, rows)
	return nil
}
