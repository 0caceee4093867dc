// Package cli implements the harvest command line interface on top of
// the core's driving ports. Commands receive their collaborators
// through package-level variables set by Configure, so tests swap in
// fakes the same way main wires the real services.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driving"
)

// version is set at build time via -ldflags.
var version = "dev"

// Injected collaborators. Commands check for nil and fail with a clear
// message instead of panicking.
var (
	orchestrator    driving.Orchestrator
	ledgerSvc       driven.Ledger
	checkpointStore driven.CheckpointStore
	adapterRegistry driven.AdapterRegistry

	// ledgerPath is where the append-only log lives; status reads it
	// directly so it can observe another process's writes.
	ledgerPath string
)

// Config carries everything the commands need.
type Config struct {
	Orchestrator driving.Orchestrator
	Ledger       driven.Ledger
	Checkpoints  driven.CheckpointStore
	Registry     driven.AdapterRegistry
	LedgerPath   string
}

// Configure injects the service implementations.
func Configure(cfg Config) {
	orchestrator = cfg.Orchestrator
	ledgerSvc = cfg.Ledger
	checkpointStore = cfg.Checkpoints
	adapterRegistry = cfg.Registry
	ledgerPath = cfg.LedgerPath
}

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Durable ingestion ledger and streaming orchestrator",
	Long: `Harvest ingests biomedical documents from pluggable source adapters,
recording every document state transition in a crash-recoverable
append-only ledger and streaming pipeline events with bounded-buffer
backpressure.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
