package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Compact the ledger into a snapshot",
	Long: `Serializes the full document state map to the snapshot side-file and
truncates the append-only log. Startup afterwards loads the snapshot
plus the short log tail instead of replaying the whole history.`,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	if ledgerSvc == nil {
		return errors.New("ledger not configured")
	}

	path, err := ledgerSvc.CreateSnapshot()
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}

	cmd.Printf("Snapshot written to %s\n", path)
	return nil
}
