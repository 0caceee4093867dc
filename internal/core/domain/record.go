package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditRecord is one immutable fact: document DocID moved from OldState
// to NewState at Timestamp, driven by Adapter, with the given context.
// Records are append-only; a record is never rewritten once flushed.
type AuditRecord struct {
	// DocID identifies the document the transition belongs to.
	DocID string `json:"doc_id"`

	// OldState is the state the document left.
	OldState LedgerState `json:"old_state"`

	// NewState is the state the document entered.
	NewState LedgerState `json:"new_state"`

	// Timestamp is the transition time in unix seconds, UTC.
	// A float so sub-second precision survives the wire format.
	Timestamp float64 `json:"timestamp"`

	// Adapter names the adapter that drove the transition, if any.
	Adapter string `json:"adapter,omitempty"`

	// Metadata carries arbitrary transition context.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Parameters carries the invocation arguments that were active
	// when the transition happened.
	Parameters map[string]any `json:"parameters,omitempty"`

	// RetryCount is how many times this document has been retried.
	RetryCount int `json:"retry_count,omitempty"`

	// DurationSeconds is how long the stage that ended with this
	// transition took, when known.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Time returns the record timestamp as a time.Time in UTC.
func (r *AuditRecord) Time() time.Time {
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// Encode serializes the record to one line of the ledger log format:
// a single JSON object, no trailing newline.
func (r *AuditRecord) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding audit record: %w", err)
	}
	return data, nil
}

// auditRecordWire mirrors AuditRecord with raw state strings so decoding
// can resolve legacy aliases before constructing the typed record.
type auditRecordWire struct {
	DocID           string         `json:"doc_id"`
	OldState        string         `json:"old_state"`
	NewState        string         `json:"new_state"`
	Timestamp       float64        `json:"timestamp"`
	Adapter         string         `json:"adapter,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	RetryCount      int            `json:"retry_count,omitempty"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
}

// DecodeAuditRecord parses one log line into an AuditRecord.
// Legacy state spellings resolve to their canonical values; a state that
// resolves to nothing fails with ErrUnknownState so callers can treat the
// line as corruption instead of guessing.
func DecodeAuditRecord(line []byte) (*AuditRecord, error) {
	var wire auditRecordWire
	if err := json.Unmarshal(line, &wire); err != nil {
		return nil, fmt.Errorf("decoding audit record: %w", err)
	}
	if wire.DocID == "" {
		return nil, fmt.Errorf("decoding audit record: %w: missing doc_id", ErrInvalidInput)
	}

	oldState, err := ParseLedgerState(wire.OldState)
	if err != nil {
		return nil, fmt.Errorf("decoding audit record for %s: %w", wire.DocID, err)
	}
	newState, err := ParseLedgerState(wire.NewState)
	if err != nil {
		return nil, fmt.Errorf("decoding audit record for %s: %w", wire.DocID, err)
	}

	return &AuditRecord{
		DocID:           wire.DocID,
		OldState:        oldState,
		NewState:        newState,
		Timestamp:       wire.Timestamp,
		Adapter:         wire.Adapter,
		Metadata:        wire.Metadata,
		Parameters:      wire.Parameters,
		RetryCount:      wire.RetryCount,
		DurationSeconds: wire.DurationSeconds,
	}, nil
}

// LedgerEntry is the materialized current state of one document: a fold
// over that document's audit records. Exactly one entry exists per DocID.
// Entries are derived, never stored independently of the log and snapshot
// they were folded from.
type LedgerEntry struct {
	// DocID identifies the document.
	DocID string `json:"doc_id"`

	// State is the current lifecycle state.
	State LedgerState `json:"state"`

	// UpdatedAt is when the last transition was recorded.
	UpdatedAt time.Time `json:"updated_at"`

	// Metadata is the latest-known metadata for the document.
	Metadata map[string]any `json:"metadata,omitempty"`

	// RetryCount is the number of retry passes recorded for the document.
	RetryCount int `json:"retry_count,omitempty"`
}

// Apply folds one audit record into the entry, returning the updated copy.
// Metadata is replaced only when the record carries any.
func (e LedgerEntry) Apply(rec *AuditRecord) LedgerEntry {
	e.DocID = rec.DocID
	e.State = rec.NewState
	e.UpdatedAt = rec.Time()
	if len(rec.Metadata) > 0 {
		e.Metadata = rec.Metadata
	}
	if rec.RetryCount > 0 {
		e.RetryCount = rec.RetryCount
	}
	return e
}
