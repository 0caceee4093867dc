package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List registered source adapters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if adapterRegistry == nil {
			return errors.New("adapter registry not configured")
		}
		for _, source := range adapterRegistry.SupportedSources() {
			cmd.Println(source)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
