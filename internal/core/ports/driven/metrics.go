package driven

import (
	"time"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
)

// Metrics is the observability surface the core emits to. A backend is
// selected once at process start and injected; the core never branches
// on whether one is installed. The metric semantics are binding even
// though backends may rename:
//
//   - a monotonically increasing counter of events by kind
//   - a histogram of whole-run elapsed time
//   - a queue-depth gauge sampled on every emission
//   - a checkpoint-to-checkpoint latency histogram
//   - a per-state gauge of ledger entries
type Metrics interface {
	// EventEmitted increments the event counter for kind.
	EventEmitted(kind domain.EventKind)

	// RunDuration records the elapsed time of one whole run.
	RunDuration(d time.Duration)

	// QueueDepth records the event channel fill level at an emission.
	QueueDepth(depth int)

	// CheckpointLatency records the time between consecutive checkpoints.
	CheckpointLatency(d time.Duration)

	// StateCount sets the number of ledger entries currently in state.
	StateCount(state domain.LedgerState, count int)
}
