package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition_LegalEdges(t *testing.T) {
	legal := []struct {
		old, new LedgerState
	}{
		{StatePending, StateFetching},
		{StateFetching, StateFetched},
		{StateFetched, StateParsing},
		{StateFetched, StateCompleted},
		{StateParsing, StateParsed},
		{StateParsed, StateValidating},
		{StateParsed, StateIRBuilding},
		{StateValidating, StateValidated},
		{StateValidated, StateIRBuilding},
		{StateIRBuilding, StateIRReady},
		{StateIRReady, StateEmbedding},
		{StateIRReady, StateCompleted},
		{StateEmbedding, StateIndexed},
		{StateIndexed, StateCompleted},
		{StateFailed, StateRetrying},
		{StateRetrying, StateFetching},
	}

	for _, tc := range legal {
		assert.NoError(t, ValidateTransition(tc.old, tc.new),
			"%s -> %s should be legal", tc.old, tc.new)
	}
}

func TestValidateTransition_ExhaustiveGrid(t *testing.T) {
	// Every pair not in ValidNextStates(old) must fail; every pair in
	// it must succeed. The table is the single source of truth.
	for _, old := range AllStates() {
		next := ValidNextStates(old)
		for _, new := range AllStates() {
			err := ValidateTransition(old, new)
			if next[new] {
				assert.NoError(t, err, "%s -> %s", old, new)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", old, new)
			}
		}
	}
}

func TestValidateTransition_ErrorNamesBothStates(t *testing.T) {
	err := ValidateTransition(StateCompleted, StateFetching)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMPLETED")
	assert.Contains(t, err.Error(), "FETCHING")
}

func TestIsTerminal(t *testing.T) {
	for _, s := range AllStates() {
		if s == StateCompleted {
			assert.True(t, s.IsTerminal())
		} else {
			assert.False(t, s.IsTerminal(), "%s must not be terminal", s)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, StateFailed.IsRetryable())
	assert.False(t, StatePending.IsRetryable())
	assert.False(t, StateCompleted.IsRetryable())
	assert.False(t, StateRetrying.IsRetryable())
}

func TestCompletedHasNoOutgoingEdges(t *testing.T) {
	assert.Empty(t, ValidNextStates(StateCompleted))
}

func TestParseLedgerState(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    LedgerState
		wantErr bool
	}{
		{name: "canonical", raw: "FETCHING", want: StateFetching},
		{name: "lower case legacy", raw: "completed", want: StateCompleted},
		{name: "lower case pending", raw: "pending", want: StatePending},
		{name: "pdf ir ready alias", raw: "pdf_ir_ready", want: StateIRReady},
		{name: "pdf ir building alias", raw: "pdf_ir_building", want: StateIRBuilding},
		{name: "done alias", raw: "done", want: StateCompleted},
		{name: "error alias", raw: "error", want: StateFailed},
		{name: "unknown", raw: "TELEPORTING", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLedgerState(tc.raw)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownState)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidNextStates_ReturnsCopy(t *testing.T) {
	next := ValidNextStates(StatePending)
	next[StateCompleted] = true

	assert.ErrorIs(t, ValidateTransition(StatePending, StateCompleted), ErrInvalidTransition)
}
