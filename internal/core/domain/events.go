package domain

import "time"

// EventKind discriminates the pipeline event variants.
type EventKind string

const (
	// EventDocumentStarted marks the start of one document's processing.
	EventDocumentStarted EventKind = "document_started"

	// EventDocumentCompleted marks a successfully processed document.
	EventDocumentCompleted EventKind = "document_completed"

	// EventDocumentFailed marks a document that failed processing.
	EventDocumentFailed EventKind = "document_failed"

	// EventAdapterStateChange marks an adapter lifecycle milestone.
	EventAdapterStateChange EventKind = "adapter_state_change"

	// EventBatchProgress carries run-level progress and checkpoints.
	EventBatchProgress EventKind = "batch_progress"
)

// AdapterPhase labels the adapter lifecycle reported by
// AdapterStateChange events. These are adapter-level milestones,
// distinct from the per-document LedgerState graph.
type AdapterPhase string

const (
	// PhaseInitialising means the adapter is being constructed.
	PhaseInitialising AdapterPhase = "initialising"

	// PhaseReady means the adapter is validated and ready to stream.
	PhaseReady AdapterPhase = "ready"

	// PhaseInvocationStarted means one parameter set began streaming.
	PhaseInvocationStarted AdapterPhase = "invocation_started"

	// PhaseInvocationCompleted means one parameter set finished.
	PhaseInvocationCompleted AdapterPhase = "invocation_completed"

	// PhaseCompleted means the whole run finished cleanly.
	PhaseCompleted AdapterPhase = "completed"

	// PhaseFailed means the run terminated on an adapter error.
	PhaseFailed AdapterPhase = "failed"
)

// PipelineEvent is one item of the orchestrator's ordered event stream.
// Implementations are immutable value types; consumers switch on the
// concrete type or on Kind().
type PipelineEvent interface {
	// Kind returns the event discriminator.
	Kind() EventKind

	// Meta returns the shared envelope (pipeline id, timestamp).
	Meta() EventMeta
}

// EventMeta is the envelope shared by every event variant.
// The orchestrator fills PipelineID and Timestamp before queueing if the
// producer (an adapter-internal emitter, say) did not set them.
type EventMeta struct {
	// PipelineID identifies the run that emitted the event.
	PipelineID string

	// Timestamp is when the event was produced.
	Timestamp time.Time
}

// Meta implements PipelineEvent.
func (m EventMeta) Meta() EventMeta { return m }

// DocumentStarted announces that a document entered processing.
type DocumentStarted struct {
	EventMeta

	// DocID identifies the document.
	DocID string

	// Adapter names the adapter that produced the document.
	Adapter string

	// Parameters is the invocation parameter set that was active.
	Parameters map[string]any
}

// Kind implements PipelineEvent.
func (DocumentStarted) Kind() EventKind { return EventDocumentStarted }

// DocumentCompleted announces a successfully processed document.
type DocumentCompleted struct {
	EventMeta

	// DocID identifies the document.
	DocID string

	// Document is the opaque downstream document value.
	Document any

	// Duration is the wall time processing this document took.
	Duration time.Duration

	// AdapterMetadata is the metadata the adapter attached to the result.
	AdapterMetadata map[string]any
}

// Kind implements PipelineEvent.
func (DocumentCompleted) Kind() EventKind { return EventDocumentCompleted }

// DocumentFailed announces a document that failed processing. Failures
// are data, not stream errors: the consumer keeps observing the stream.
type DocumentFailed struct {
	EventMeta

	// DocID identifies the document, when known.
	DocID string

	// Err is the failure cause.
	Err error

	// ErrorType is a short classification of Err for consumers that
	// only match on strings (persisted checkpoints, dashboards).
	ErrorType string

	// RetryCount is how many times the document has been retried.
	RetryCount int

	// IsRetryable reports whether a corrected re-run could succeed.
	IsRetryable bool
}

// Kind implements PipelineEvent.
func (DocumentFailed) Kind() EventKind { return EventDocumentFailed }

// AdapterStateChange announces an adapter lifecycle milestone.
type AdapterStateChange struct {
	EventMeta

	// Adapter names the adapter.
	Adapter string

	// OldPhase is the phase the adapter left.
	OldPhase AdapterPhase

	// NewPhase is the phase the adapter entered.
	NewPhase AdapterPhase

	// Reason explains the change, when there is something to say.
	Reason string
}

// Kind implements PipelineEvent.
func (AdapterStateChange) Kind() EventKind { return EventAdapterStateChange }

// BatchProgress carries run-level counters. Lightweight progress events
// are emitted periodically; checkpoint events additionally carry the ids
// completed since the previous checkpoint so consumers can persist them
// and resume a later run with deduplication.
type BatchProgress struct {
	EventMeta

	// CompletedCount is the number of documents completed so far.
	CompletedCount int

	// FailedCount is the number of documents failed so far.
	FailedCount int

	// InFlightCount is the number of documents currently processing.
	InFlightCount int

	// QueueDepth is the fill level of the event channel at emission.
	QueueDepth int

	// Remaining is the estimated number of documents still to process.
	// Negative when no total estimate was supplied.
	Remaining int

	// ETASeconds estimates time to completion from the mean document
	// duration. Zero when no estimate is possible.
	ETASeconds float64

	// BackpressureWaitSeconds is the cumulative time the producer spent
	// suspended on a full event channel.
	BackpressureWaitSeconds float64

	// CheckpointDocIDs lists the documents completed since the previous
	// checkpoint. Only populated when IsCheckpoint is true.
	CheckpointDocIDs []string

	// IsCheckpoint distinguishes checkpoint events from lightweight
	// progress ticks.
	IsCheckpoint bool
}

// Kind implements PipelineEvent.
func (BatchProgress) Kind() EventKind { return EventBatchProgress }

// EventFilter narrows the stream: events for which it returns false are
// dropped before queueing. A nil filter keeps everything.
type EventFilter func(PipelineEvent) bool

// EventTransformer reshapes events before queueing. Returning false
// drops the event. A nil transformer passes events through unchanged.
type EventTransformer func(PipelineEvent) (PipelineEvent, bool)
