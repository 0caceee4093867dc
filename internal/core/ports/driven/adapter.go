package driven

import (
	"context"
	"net/http"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
)

// Result is one item of an adapter's result stream.
type Result struct {
	// DocID is the stable identifier of the document across runs.
	// Used for resume deduplication and ledger keying.
	DocID string

	// Document is the opaque value handed to downstream stages.
	Document any

	// Metadata is adapter-specific context for the result.
	Metadata map[string]any
}

// EventEmitter receives adapter-internal events (transport retries,
// backoff, pagination milestones) so they can be folded into the
// orchestrator's unified stream.
type EventEmitter func(domain.PipelineEvent)

// Adapter fetches and parses records from one data source.
// Each source type (literature API, trial registry, drug label feed,
// terminology service) implements this interface.
type Adapter interface {
	// Name returns the adapter type identifier.
	Name() string

	// Validate checks the adapter is properly configured and ready.
	// For API adapters this typically makes a test call.
	Validate(ctx context.Context) error

	// Results streams results for one invocation's parameter set.
	// Both channels are closed when the invocation ends; a value on the
	// error channel terminates the invocation.
	Results(ctx context.Context, params map[string]any) (<-chan Result, <-chan error)

	// BindEventEmitter registers a callback for adapter-internal events.
	// A nil emitter unbinds. Events may arrive with an empty envelope;
	// the orchestrator fills in pipeline id and timestamp.
	BindEventEmitter(emit EventEmitter)

	// Close releases resources.
	Close() error
}

// AdapterContext carries the shared handles an adapter is constructed
// with: the ledger (so adapters may record fetch-level sub-state if they
// choose) and the caller-supplied HTTP transport.
type AdapterContext struct {
	// Ledger is the shared ingestion ledger handle. May be nil for
	// adapters that never record sub-state.
	Ledger Ledger

	// Client is the HTTP client owned by the current run. The run that
	// acquired the adapter releases it on every exit path.
	Client *http.Client
}

// AdapterBuilder constructs an Adapter bound to the given context.
type AdapterBuilder func(ctx AdapterContext) (Adapter, error)

// AdapterRegistry creates adapters from source names.
// It is a constructed, explicit object passed into the orchestrator,
// never a module-level singleton, so tests can substitute fakes.
type AdapterRegistry interface {
	// Get returns an adapter for the given source bound to actx.
	// Returns domain.ErrUnsupportedType for an unknown source.
	Get(ctx context.Context, source string, actx AdapterContext) (Adapter, error)

	// Register adds an adapter builder for the given source name.
	Register(source string, builder AdapterBuilder)

	// SupportedSources returns all registered source names.
	SupportedSources() []string
}
