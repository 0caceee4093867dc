package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

var stuckThreshold time.Duration

var stuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "List documents stuck in a non-terminal state",
	Long: `Lists documents whose last transition is older than the threshold
and that have not reached COMPLETED. These are candidates for retry or
manual inspection after an interrupted ingestion.`,
	RunE: runStuck,
}

func init() {
	stuckCmd.Flags().DurationVar(&stuckThreshold, "threshold", 30*time.Minute, "minimum age of the last transition")
	rootCmd.AddCommand(stuckCmd)
}

func runStuck(cmd *cobra.Command, _ []string) error {
	if ledgerSvc == nil {
		return errors.New("ledger not configured")
	}

	stuck := ledgerSvc.StuckDocuments(stuckThreshold)
	if len(stuck) == 0 {
		cmd.Printf("No documents stuck for more than %s.\n", stuckThreshold)
		return nil
	}

	cmd.Printf("%d stuck document(s):\n", len(stuck))
	for _, entry := range stuck {
		cmd.Printf("  %s  %-12s  last update %s\n",
			entry.DocID, entry.State, entry.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
