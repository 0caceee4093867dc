package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown adapter type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Ledger Errors.

	// ErrInvalidTransition indicates a lifecycle transition that the
	// state graph does not permit. It is a caller bug, never retried.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownState indicates a state string that resolves to no
	// canonical LedgerState, even after alias resolution.
	ErrUnknownState = errors.New("unknown ledger state")

	// ErrCorruptLedger indicates the ledger log or snapshot cannot be
	// fully and unambiguously replayed. Fatal at load time: the store
	// refuses to guess and proceed.
	ErrCorruptLedger = errors.New("corrupt ledger")

	// Orchestrator Errors.

	// ErrAdapterValidation indicates an adapter failed its readiness check.
	// The source is misconfigured or credentials are invalid.
	ErrAdapterValidation = errors.New("adapter validation failed")

	// ErrStreamClosed indicates the event stream has already been closed.
	ErrStreamClosed = errors.New("event stream closed")

	// ErrRateLimited indicates the upstream API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)
