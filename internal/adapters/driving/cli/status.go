package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	ledgerfile "github.com/biolit-labs/harvest-cli/internal/adapters/driven/ledger/file"
	"github.com/biolit-labs/harvest-cli/internal/core/domain"
)

var (
	statusFollow bool
	statusJSON   bool
	statusState  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-state document counts from the ledger",
	Long: `Reads the ledger snapshot and log directly and prints how many
documents sit in each state. With --follow, keeps watching the log file
and re-renders as records are appended by a running ingestion.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "keep watching the ledger for new records")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().StringVar(&statusState, "state", "", "list documents in the given state instead of counts")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if ledgerPath == "" {
		return errors.New("ledger path not configured")
	}

	if err := renderStatus(cmd); err != nil {
		return err
	}
	if !statusFollow {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the log file is truncated and the snapshot
	// replaced by rename during compaction, so watching the file alone
	// loses events.
	if err := watcher.Add(filepath.Dir(ledgerPath)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(ledgerPath), err)
	}

	// Debounce bursts of appends into one re-render.
	var pending <-chan time.Time
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-pending:
			pending = nil
			if err := renderStatus(cmd); err != nil {
				return err
			}
		}
	}
}

func renderStatus(cmd *cobra.Command) error {
	entries, createdAt, err := ledgerfile.LoadWithCompaction(ledgerfile.SnapshotPath(ledgerPath), ledgerPath)
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	if statusState != "" {
		return renderStateListing(cmd, entries)
	}

	counts := make(map[domain.LedgerState]int)
	for _, entry := range entries {
		counts[entry.State]++
	}

	if statusJSON {
		out := struct {
			Total      int                        `json:"total"`
			States     map[domain.LedgerState]int `json:"states"`
			SnapshotAt *time.Time                 `json:"snapshot_at,omitempty"`
		}{Total: len(entries), States: counts}
		if !createdAt.IsZero() {
			out.SnapshotAt = &createdAt
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Documents: %d\n", len(entries))
	for _, state := range domain.AllStates() {
		if counts[state] > 0 {
			cmd.Printf("  %-12s %d\n", state, counts[state])
		}
	}
	if !createdAt.IsZero() {
		cmd.Printf("Snapshot:  %s\n", createdAt.Format(time.RFC3339))
	}
	return nil
}

func renderStateListing(cmd *cobra.Command, entries map[string]domain.LedgerEntry) error {
	state, err := domain.ParseLedgerState(statusState)
	if err != nil {
		return err
	}

	var matched []domain.LedgerEntry
	for _, entry := range entries {
		if entry.State == state {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].DocID < matched[j].DocID })

	if statusJSON {
		data, err := json.MarshalIndent(matched, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling entries: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(matched) == 0 {
		cmd.Printf("No documents in state %s.\n", state)
		return nil
	}
	for _, entry := range matched {
		cmd.Printf("%s  %s  %s\n", entry.DocID, entry.State, entry.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
