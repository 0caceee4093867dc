package driven

import (
	"time"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
)

// UpdateOptions carries the optional context of one state transition.
type UpdateOptions struct {
	// Adapter names the adapter driving the transition.
	Adapter string

	// Metadata is arbitrary transition context.
	Metadata map[string]any

	// Parameters is the invocation argument set that was active.
	Parameters map[string]any

	// RetryCount is how many times the document has been retried.
	RetryCount int

	// Duration is how long the stage that ended with this transition took.
	Duration time.Duration
}

// UpdateOption mutates UpdateOptions.
type UpdateOption func(*UpdateOptions)

// WithAdapter sets the adapter name recorded on the transition.
func WithAdapter(adapter string) UpdateOption {
	return func(o *UpdateOptions) { o.Adapter = adapter }
}

// WithMetadata sets the transition metadata.
func WithMetadata(metadata map[string]any) UpdateOption {
	return func(o *UpdateOptions) { o.Metadata = metadata }
}

// WithParameters sets the invocation parameters recorded on the transition.
func WithParameters(parameters map[string]any) UpdateOption {
	return func(o *UpdateOptions) { o.Parameters = parameters }
}

// WithRetryCount sets the retry count recorded on the transition.
func WithRetryCount(n int) UpdateOption {
	return func(o *UpdateOptions) { o.RetryCount = n }
}

// WithDuration sets the stage duration recorded on the transition.
func WithDuration(d time.Duration) UpdateOption {
	return func(o *UpdateOptions) { o.Duration = d }
}

// Ledger is the single authority for "what state is document X in",
// durable across process restarts and safe under concurrent callers.
type Ledger interface {
	// UpdateState records a legal transition for a document and returns
	// the appended audit record. A document never seen before starts
	// from the implicit StatePending. The record is durably flushed
	// before the call returns. Fails with domain.ErrUnknownState for a
	// state outside the closed enumeration and domain.ErrInvalidTransition
	// for an illegal edge.
	UpdateState(docID string, newState domain.LedgerState, opts ...UpdateOption) (*domain.AuditRecord, error)

	// Record is the compatibility entry point accepting a raw state
	// string. It resolves legacy aliases and delegates to UpdateState.
	//
	// Deprecated: call UpdateState with a domain.LedgerState instead.
	// Kept so historical callers and log consumers do not break.
	Record(docID, rawState string, opts ...UpdateOption) (*domain.AuditRecord, error)

	// Get returns the entry for a document, or domain.ErrNotFound.
	Get(docID string) (*domain.LedgerEntry, error)

	// Entries returns all entries, optionally filtered to the given
	// states. Order is unspecified.
	Entries(states ...domain.LedgerState) []domain.LedgerEntry

	// StuckDocuments returns non-terminal entries whose last update is
	// older than threshold. Used for operational alerting.
	StuckDocuments(threshold time.Duration) []domain.LedgerEntry

	// CreateSnapshot materializes the full state map to the snapshot
	// side-file and truncates the log. Returns the snapshot path.
	CreateSnapshot() (string, error)

	// Close releases the underlying log file.
	Close() error
}
