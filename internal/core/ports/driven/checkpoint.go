package driven

import "context"

// CheckpointStore persists the document ids a run has completed, keyed
// by a caller-chosen scope (typically the source name). A later run
// loads the set into its resume filter, giving at-least-once delivery
// with caller-driven deduplication.
type CheckpointStore interface {
	// SaveCheckpoint appends the given ids to the scope's completed set.
	SaveCheckpoint(ctx context.Context, scope string, docIDs []string) error

	// CompletedIDs returns the scope's completed set. An unknown scope
	// returns an empty set, not an error.
	CompletedIDs(ctx context.Context, scope string) (map[string]struct{}, error)

	// Clear removes the scope's completed set.
	Clear(ctx context.Context, scope string) error
}
