package driving

import (
	"context"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
)

// StreamRequest describes one orchestrator run: a single source driven
// across one or more invocations, streamed as ordered events.
type StreamRequest struct {
	// Source names the adapter to drive.
	Source string

	// Invocations is the sequence of parameter sets to run, strictly in
	// order within one producer. An empty slice means one invocation
	// with no parameters.
	Invocations []map[string]any

	// BufferSize is the event channel capacity; this is the
	// backpressure point. Defaults to 64 when zero.
	BufferSize int

	// ProgressInterval emits a lightweight BatchProgress every N
	// completions. Defaults to 10 when zero.
	ProgressInterval int

	// CheckpointInterval emits a checkpoint BatchProgress every N
	// completions. A final checkpoint is always emitted at stream end
	// regardless. Defaults to 100 when zero.
	CheckpointInterval int

	// Filter drops events before queueing. Nil keeps everything.
	Filter domain.EventFilter

	// Transformer reshapes events before queueing. Nil passes through.
	Transformer domain.EventTransformer

	// CompletedIDs is the resume set: results whose id is present are
	// skipped without events or ledger transitions.
	CompletedIDs map[string]struct{}

	// TotalEstimated is the expected total document count, used for
	// Remaining/ETA in progress events. Zero means unknown.
	TotalEstimated int
}

// Stream is a live, backpressured event stream for one run.
type Stream interface {
	// Events returns the ordered event channel. It is closed when the
	// run ends, fails fast, or the stream is closed.
	Events() <-chan domain.PipelineEvent

	// Close cancels the producer, waits for it to finish, and releases
	// the adapter and HTTP client. Safe to call more than once.
	Close() error

	// Err returns the terminal error of the run, if any, once Events()
	// is closed.
	Err() error
}

// Orchestrator drives adapters and turns their activity into a single
// ordered, backpressured event stream.
type Orchestrator interface {
	// StreamEvents starts one run and returns its event stream.
	// The producer is cancelled and joined when the context is
	// cancelled or the stream is closed.
	StreamEvents(ctx context.Context, req StreamRequest) (Stream, error)

	// Run drains a whole run into a slice. For small batches only.
	Run(ctx context.Context, req StreamRequest) ([]domain.PipelineEvent, error)

	// IterResults narrows the stream to completed documents, for
	// callers that do not need the richer event types. The channel is
	// closed when the run ends.
	IterResults(ctx context.Context, req StreamRequest) (<-chan domain.DocumentCompleted, error)
}
