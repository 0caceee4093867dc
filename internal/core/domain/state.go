package domain

import (
	"fmt"
	"strings"
)

// LedgerState is one stage of the document ingestion lifecycle.
// The set of states is closed: every value on the wire must resolve to
// one of the constants below, possibly via the legacy alias table.
type LedgerState string

const (
	// StatePending is the implicit starting state of every document.
	StatePending LedgerState = "PENDING"

	// StateFetching means an adapter is retrieving the document.
	StateFetching LedgerState = "FETCHING"

	// StateFetched means the raw document has been retrieved.
	StateFetched LedgerState = "FETCHED"

	// StateParsing means the raw payload is being parsed.
	StateParsing LedgerState = "PARSING"

	// StateParsed means parsing produced a structured document.
	StateParsed LedgerState = "PARSED"

	// StateValidating means the parsed document is being validated.
	StateValidating LedgerState = "VALIDATING"

	// StateValidated means validation passed.
	StateValidated LedgerState = "VALIDATED"

	// StateIRBuilding means the intermediate representation is being built.
	StateIRBuilding LedgerState = "IR_BUILDING"

	// StateIRReady means the intermediate representation is complete.
	StateIRReady LedgerState = "IR_READY"

	// StateEmbedding means embeddings are being generated.
	StateEmbedding LedgerState = "EMBEDDING"

	// StateIndexed means the document has been written to the index.
	StateIndexed LedgerState = "INDEXED"

	// StateRetrying means a failed document is being re-driven
	// through the forward pipeline.
	StateRetrying LedgerState = "RETRYING"

	// StateCompleted is the single terminal state. No outgoing edges.
	StateCompleted LedgerState = "COMPLETED"

	// StateFailed means processing failed. Retryable via StateRetrying;
	// the entry stays visible for operational inspection.
	StateFailed LedgerState = "FAILED"
)

// validTransitions is the single source of truth for transition legality.
// Every mutation of the ledger consults this table; no component bypasses it.
var validTransitions = map[LedgerState][]LedgerState{
	StatePending:    {StateFetching, StateFailed},
	StateFetching:   {StateFetched, StateFailed},
	StateFetched:    {StateParsing, StateCompleted, StateFailed},
	StateParsing:    {StateParsed, StateFailed},
	StateParsed:     {StateValidating, StateIRBuilding, StateFailed},
	StateValidating: {StateValidated, StateFailed},
	StateValidated:  {StateIRBuilding, StateFailed},
	StateIRBuilding: {StateIRReady, StateFailed},
	StateIRReady:    {StateEmbedding, StateCompleted, StateFailed},
	StateEmbedding:  {StateIndexed, StateFailed},
	StateIndexed:    {StateCompleted, StateFailed},
	StateRetrying:   {StateFetching, StateParsing, StateEmbedding, StateFailed},
	StateCompleted:  {},
	StateFailed:     {StateRetrying},
}

// legacyStateAliases maps historical state spellings to canonical values.
// Consulted once at decode time, never scattered through the codebase.
// Old logs used lower-case state names and a few renamed stages.
var legacyStateAliases = map[string]LedgerState{
	"pdf_ir_building": StateIRBuilding,
	"pdf_ir_ready":    StateIRReady,
	"ir_build":        StateIRBuilding,
	"embedded":        StateIndexed,
	"done":            StateCompleted,
	"error":           StateFailed,
}

// AllStates returns every canonical ledger state.
// The order is stable: forward pipeline order, then retry/terminal states.
func AllStates() []LedgerState {
	return []LedgerState{
		StatePending, StateFetching, StateFetched,
		StateParsing, StateParsed,
		StateValidating, StateValidated,
		StateIRBuilding, StateIRReady,
		StateEmbedding, StateIndexed,
		StateRetrying, StateCompleted, StateFailed,
	}
}

// IsValid reports whether s is a member of the closed state enumeration.
func (s LedgerState) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing edges.
// Only StateCompleted is terminal; StateFailed is retryable instead.
func (s LedgerState) IsTerminal() bool {
	return s == StateCompleted
}

// IsRetryable reports whether a document in s may be re-driven through
// the pipeline. Only StateFailed is retryable.
func (s LedgerState) IsRetryable() bool {
	return s == StateFailed
}

// String returns the canonical wire spelling of the state.
func (s LedgerState) String() string {
	return string(s)
}

// ValidNextStates returns the closed set of states s may legally move to.
// The returned map is a copy; callers may mutate it freely.
func ValidNextStates(s LedgerState) map[LedgerState]bool {
	next := make(map[LedgerState]bool, len(validTransitions[s]))
	for _, n := range validTransitions[s] {
		next[n] = true
	}
	return next
}

// ValidateTransition checks that old → new is a legal edge of the state
// graph. The returned error wraps ErrInvalidTransition and names both
// states. An unknown state fails for the same reason: it has no
// outgoing edges.
func ValidateTransition(old, new LedgerState) error {
	for _, n := range validTransitions[old] {
		if n == new {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, old, new)
}

// ParseLedgerState resolves a state string to its canonical LedgerState.
// Canonical spellings match exactly; legacy spellings (lower-case names,
// renamed stages) resolve through the alias table. Anything else fails
// with ErrUnknownState rather than silently defaulting.
func ParseLedgerState(raw string) (LedgerState, error) {
	if s := LedgerState(raw); s.IsValid() {
		return s, nil
	}

	lower := strings.ToLower(raw)
	if alias, ok := legacyStateAliases[lower]; ok {
		return alias, nil
	}
	// Old logs wrote canonical names in lower case.
	if s := LedgerState(strings.ToUpper(raw)); s.IsValid() {
		return s, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownState, raw)
}
