package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driving"
)

var (
	runParams           []string
	runResume           bool
	runBufferSize       int
	runProgressInterval int
	runCheckpointEvery  int
	runTotal            int
)

var runCmd = &cobra.Command{
	Use:   "run [source]",
	Short: "Run an ingestion from a source adapter",
	Long: `Streams documents from the named source adapter through the
orchestrator, recording every state transition in the ledger and
persisting checkpoints so an interrupted run can resume.

Invocation parameters are passed as repeated --param key=value flags,
e.g.:

  harvest run jsonl --param path=2025-08-batch.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestion,
}

func init() {
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "invocation parameter key=value (repeatable)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "skip documents completed by previous runs")
	runCmd.Flags().IntVar(&runBufferSize, "buffer", 0, "event buffer size (0 = default)")
	runCmd.Flags().IntVar(&runProgressInterval, "progress-every", 0, "progress event interval in completions (0 = default)")
	runCmd.Flags().IntVar(&runCheckpointEvery, "checkpoint-every", 0, "checkpoint interval in completions (0 = default)")
	runCmd.Flags().IntVar(&runTotal, "total", 0, "estimated total documents, for ETA reporting")
	rootCmd.AddCommand(runCmd)
}

func runIngestion(cmd *cobra.Command, args []string) error {
	if orchestrator == nil {
		return errors.New("orchestrator not configured")
	}
	source := args[0]
	ctx := cmd.Context()

	params, err := parseParams(runParams)
	if err != nil {
		return err
	}

	req := driving.StreamRequest{
		Source:             source,
		BufferSize:         runBufferSize,
		ProgressInterval:   runProgressInterval,
		CheckpointInterval: runCheckpointEvery,
		TotalEstimated:     runTotal,
	}
	if len(params) > 0 {
		req.Invocations = []map[string]any{params}
	}

	if runResume {
		if checkpointStore == nil {
			return errors.New("checkpoint store not configured")
		}
		completed, err := checkpointStore.CompletedIDs(ctx, source)
		if err != nil {
			return fmt.Errorf("loading checkpoints: %w", err)
		}
		req.CompletedIDs = completed
		if len(completed) > 0 {
			cmd.Printf("Resuming: %d document(s) already completed.\n", len(completed))
		}
	}

	stream, err := orchestrator.StreamEvents(ctx, req)
	if err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	defer stream.Close()

	for ev := range stream.Events() {
		if err := handleRunEvent(cmd, source, ev); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

// handleRunEvent renders one event and persists checkpoints.
func handleRunEvent(cmd *cobra.Command, source string, ev domain.PipelineEvent) error {
	switch e := ev.(type) {
	case domain.DocumentCompleted:
		cmd.Printf("done  %s  (%s)\n", e.DocID, e.Duration.Round(time.Millisecond))

	case domain.DocumentFailed:
		cmd.PrintErrf("FAIL  %s: %v (type=%s retryable=%t)\n", e.DocID, e.Err, e.ErrorType, e.IsRetryable)

	case domain.AdapterStateChange:
		if e.Reason != "" {
			cmd.Printf("[%s] %s -> %s: %s\n", e.Adapter, e.OldPhase, e.NewPhase, e.Reason)
		} else {
			cmd.Printf("[%s] %s -> %s\n", e.Adapter, e.OldPhase, e.NewPhase)
		}

	case domain.BatchProgress:
		if e.IsCheckpoint && checkpointStore != nil && len(e.CheckpointDocIDs) > 0 {
			if err := checkpointStore.SaveCheckpoint(cmd.Context(), source, e.CheckpointDocIDs); err != nil {
				return fmt.Errorf("saving checkpoint: %w", err)
			}
		}
		cmd.Println(formatProgress(e))
	}
	return nil
}

func formatProgress(e domain.BatchProgress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "progress: %d completed, %d failed", e.CompletedCount, e.FailedCount)
	if e.Remaining >= 0 {
		fmt.Fprintf(&b, ", %d remaining", e.Remaining)
	}
	if e.ETASeconds > 0 {
		fmt.Fprintf(&b, ", ETA %s", (time.Duration(e.ETASeconds * float64(time.Second))).Round(time.Second))
	}
	if e.BackpressureWaitSeconds > 0 {
		fmt.Fprintf(&b, ", backpressure %.2fs", e.BackpressureWaitSeconds)
	}
	if e.IsCheckpoint {
		b.WriteString(" [checkpoint]")
	}
	return b.String()
}

// parseParams turns repeated key=value flags into one parameter map.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: malformed --param %q, want key=value", domain.ErrInvalidInput, pair)
		}
		params[key] = value
	}
	return params, nil
}
