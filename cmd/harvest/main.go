// Command harvest runs biomedical document ingestions against a
// durable, crash-recoverable ledger.
package main

import (
	"fmt"
	"net/http"
	"os"

	checkpointsqlite "github.com/biolit-labs/harvest-cli/internal/adapters/driven/checkpoint/sqlite"
	configfile "github.com/biolit-labs/harvest-cli/internal/adapters/driven/config/file"
	"github.com/biolit-labs/harvest-cli/internal/adapters/driven/feeds/jsonl"
	ledgerfile "github.com/biolit-labs/harvest-cli/internal/adapters/driven/ledger/file"
	"github.com/biolit-labs/harvest-cli/internal/adapters/driven/metrics"
	"github.com/biolit-labs/harvest-cli/internal/adapters/driven/registry"
	"github.com/biolit-labs/harvest-cli/internal/adapters/driven/transport"
	"github.com/biolit-labs/harvest-cli/internal/adapters/driving/cli"
	"github.com/biolit-labs/harvest-cli/internal/core/services"
	"github.com/biolit-labs/harvest-cli/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := configfile.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	settings := config.Settings()

	var logOpts []logger.Option
	if settings.LogLevel != "" {
		logOpts = append(logOpts, logger.WithLevel(settings.LogLevel))
	}
	if settings.LogPath != "" {
		logOpts = append(logOpts, logger.WithOutputPaths(settings.LogPath), logger.WithEncoding("json"))
	}
	log, err := logger.New(logOpts...)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	var ledgerOpts []ledgerfile.StoreOption
	ledgerOpts = append(ledgerOpts, ledgerfile.WithLogger(log.Named("ledger")))
	if settings.AutoSnapshotInterval > 0 {
		ledgerOpts = append(ledgerOpts, ledgerfile.WithAutoSnapshotInterval(settings.AutoSnapshotInterval))
	}
	ledger, err := ledgerfile.NewStore(settings.LedgerPath, ledgerOpts...)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	checkpoints, err := checkpointsqlite.NewStore(settings.DataDir)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer checkpoints.Close()

	reg := registry.New()
	reg.Register("jsonl", jsonl.Builder(settings.FeedRoot))

	var client *http.Client
	if settings.RateLimitRPS > 0 {
		client = transport.NewClient(settings.RateLimitRPS, 1)
	}

	orchestrator := services.NewStreamingOrchestrator(reg, ledger, client, metrics.NewNoop(), log.Named("orchestrator"))

	cli.Configure(cli.Config{
		Orchestrator: orchestrator,
		Ledger:       ledger,
		Checkpoints:  checkpoints,
		Registry:     reg,
		LedgerPath:   settings.LedgerPath,
	})

	return cli.Execute()
}
