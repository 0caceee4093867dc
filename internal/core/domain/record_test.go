package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecord_RoundTrip(t *testing.T) {
	rec := &AuditRecord{
		DocID:     "pubmed:38012345",
		OldState:  StateFetching,
		NewState:  StateFetched,
		Timestamp: 1735689600.25,
		Adapter:   "pubmed",
		Metadata:  map[string]any{"size_bytes": float64(2048), "journal": "Nature"},
		Parameters: map[string]any{
			"query": "glioblastoma", "page": float64(3),
		},
		RetryCount:      1,
		DurationSeconds: 0.8,
	}

	line, err := rec.Encode()
	require.NoError(t, err)

	decoded, err := DecodeAuditRecord(line)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestAuditRecord_RoundTrip_MinimalFields(t *testing.T) {
	rec := &AuditRecord{
		DocID:     "nct:NCT05550000",
		OldState:  StatePending,
		NewState:  StateFetching,
		Timestamp: 1735689601,
	}

	line, err := rec.Encode()
	require.NoError(t, err)

	decoded, err := DecodeAuditRecord(line)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestDecodeAuditRecord_LegacyAliases(t *testing.T) {
	// Old logs wrote lower-case state names and the pdf_* stage names.
	// Both spellings must decode to the same canonical record.
	legacy := []byte(`{"doc_id":"dmd:DB01234","old_state":"pdf_ir_building","new_state":"pdf_ir_ready","timestamp":1700000000.5}`)
	modern := []byte(`{"doc_id":"dmd:DB01234","old_state":"IR_BUILDING","new_state":"IR_READY","timestamp":1700000000.5}`)

	fromLegacy, err := DecodeAuditRecord(legacy)
	require.NoError(t, err)
	fromModern, err := DecodeAuditRecord(modern)
	require.NoError(t, err)

	assert.Equal(t, fromModern, fromLegacy)
	assert.Equal(t, StateIRReady, fromLegacy.NewState)
}

func TestDecodeAuditRecord_LowerCaseCompleted(t *testing.T) {
	line := []byte(`{"doc_id":"d1","old_state":"indexed","new_state":"completed","timestamp":1700000001}`)

	rec, err := DecodeAuditRecord(line)
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, rec.OldState)
	assert.Equal(t, StateCompleted, rec.NewState)
}

func TestDecodeAuditRecord_UnknownState(t *testing.T) {
	line := []byte(`{"doc_id":"d1","old_state":"PENDING","new_state":"SHIPPED","timestamp":1700000000}`)

	_, err := DecodeAuditRecord(line)
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestDecodeAuditRecord_Malformed(t *testing.T) {
	_, err := DecodeAuditRecord([]byte(`{"doc_id":`))
	assert.Error(t, err)
}

func TestDecodeAuditRecord_MissingDocID(t *testing.T) {
	line := []byte(`{"old_state":"PENDING","new_state":"FETCHING","timestamp":1700000000}`)

	_, err := DecodeAuditRecord(line)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuditRecord_Time(t *testing.T) {
	rec := &AuditRecord{Timestamp: 1735689600.5}

	want := time.Unix(1735689600, int64(500*time.Millisecond)).UTC()
	assert.Equal(t, want, rec.Time())
}

func TestAuditRecord_EncodeIsSingleJSONObject(t *testing.T) {
	rec := &AuditRecord{DocID: "d1", OldState: StatePending, NewState: StateFetching, Timestamp: 1}

	line, err := rec.Encode()
	require.NoError(t, err)
	assert.True(t, json.Valid(line))
	assert.NotContains(t, string(line), "\n")
}

func TestLedgerEntry_Apply(t *testing.T) {
	entry := LedgerEntry{
		DocID:     "d1",
		State:     StateFetching,
		UpdatedAt: time.Unix(100, 0).UTC(),
		Metadata:  map[string]any{"source": "pubmed"},
	}

	next := entry.Apply(&AuditRecord{
		DocID:     "d1",
		OldState:  StateFetching,
		NewState:  StateFetched,
		Timestamp: 200,
	})

	assert.Equal(t, StateFetched, next.State)
	assert.Equal(t, time.Unix(200, 0).UTC(), next.UpdatedAt)
	// No metadata on the record: latest-known metadata is kept.
	assert.Equal(t, map[string]any{"source": "pubmed"}, next.Metadata)

	withMeta := next.Apply(&AuditRecord{
		DocID:     "d1",
		OldState:  StateFetched,
		NewState:  StateParsing,
		Timestamp: 300,
		Metadata:  map[string]any{"parser": "jats"},
	})
	assert.Equal(t, map[string]any{"parser": "jats"}, withMeta.Metadata)

	// Retry passes stick to the entry across later records that carry none.
	retried := withMeta.Apply(&AuditRecord{
		DocID:      "d1",
		OldState:   StateParsing,
		NewState:   StateFailed,
		Timestamp:  400,
		RetryCount: 2,
	})
	assert.Equal(t, 2, retried.RetryCount)
	after := retried.Apply(&AuditRecord{
		DocID:     "d1",
		OldState:  StateFailed,
		NewState:  StateRetrying,
		Timestamp: 500,
	})
	assert.Equal(t, 2, after.RetryCount)
}
