package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driving"
)

// mockStream implements driving.Stream over a canned event list.
type mockStream struct {
	events chan domain.PipelineEvent
	err    error
	closed bool
}

func newMockStream(err error, events ...domain.PipelineEvent) *mockStream {
	ch := make(chan domain.PipelineEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &mockStream{events: ch, err: err}
}

func (s *mockStream) Events() <-chan domain.PipelineEvent { return s.events }
func (s *mockStream) Close() error                        { s.closed = true; return nil }
func (s *mockStream) Err() error                          { return s.err }

// mockOrchestrator implements driving.Orchestrator for testing.
type mockOrchestrator struct {
	stream   *mockStream
	startErr error
	lastReq  driving.StreamRequest
}

func (m *mockOrchestrator) StreamEvents(_ context.Context, req driving.StreamRequest) (driving.Stream, error) {
	m.lastReq = req
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.stream, nil
}

func (m *mockOrchestrator) Run(ctx context.Context, req driving.StreamRequest) ([]domain.PipelineEvent, error) {
	stream, err := m.StreamEvents(ctx, req)
	if err != nil {
		return nil, err
	}
	var events []domain.PipelineEvent
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	return events, stream.Err()
}

func (m *mockOrchestrator) IterResults(ctx context.Context, req driving.StreamRequest) (<-chan domain.DocumentCompleted, error) {
	return nil, errors.New("not used in tests")
}

// mockCheckpoints implements driven.CheckpointStore for testing.
type mockCheckpoints struct {
	saved     map[string][]string
	completed map[string]struct{}
}

func newMockCheckpoints() *mockCheckpoints {
	return &mockCheckpoints{saved: make(map[string][]string)}
}

func (m *mockCheckpoints) SaveCheckpoint(_ context.Context, scope string, docIDs []string) error {
	m.saved[scope] = append(m.saved[scope], docIDs...)
	return nil
}

func (m *mockCheckpoints) CompletedIDs(_ context.Context, _ string) (map[string]struct{}, error) {
	if m.completed == nil {
		return map[string]struct{}{}, nil
	}
	return m.completed, nil
}

func (m *mockCheckpoints) Clear(_ context.Context, _ string) error { return nil }

func setupRunTest(orch *mockOrchestrator, cps *mockCheckpoints) func() {
	oldOrch, oldCps := orchestrator, checkpointStore
	orchestrator = orch
	checkpointStore = cps
	resetRunFlags()
	return func() {
		orchestrator = oldOrch
		checkpointStore = oldCps
		resetRunFlags()
	}
}

// resetRunFlags clears flag state between executions; array flags in
// particular accumulate across parses.
func resetRunFlags() {
	runParams = nil
	runResume = false
	runBufferSize = 0
	runProgressInterval = 0
	runCheckpointEvery = 0
	runTotal = 0
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRunCmd_StreamsAndReportsEvents(t *testing.T) {
	orch := &mockOrchestrator{stream: newMockStream(nil,
		domain.AdapterStateChange{Adapter: "jsonl", OldPhase: domain.PhaseInitialising, NewPhase: domain.PhaseReady},
		domain.DocumentCompleted{DocID: "pmid-1", Duration: 120 * time.Millisecond},
		domain.BatchProgress{CompletedCount: 1, Remaining: -1, IsCheckpoint: true, CheckpointDocIDs: []string{"pmid-1"}},
	)}
	cps := newMockCheckpoints()
	defer setupRunTest(orch, cps)()

	out, err := execute(t, "run", "jsonl", "--param", "path=batch.jsonl")
	require.NoError(t, err)

	assert.Contains(t, out, "done  pmid-1")
	assert.Contains(t, out, "[checkpoint]")
	assert.Equal(t, "jsonl", orch.lastReq.Source)
	require.Len(t, orch.lastReq.Invocations, 1)
	assert.Equal(t, map[string]any{"path": "batch.jsonl"}, orch.lastReq.Invocations[0])

	// Checkpoint ids were persisted under the source scope.
	assert.Equal(t, []string{"pmid-1"}, cps.saved["jsonl"])
}

func TestRunCmd_FailedRunReturnsError(t *testing.T) {
	streamErr := errors.New("upstream 500")
	orch := &mockOrchestrator{stream: newMockStream(streamErr,
		domain.DocumentFailed{DocID: "pmid-9", Err: streamErr, ErrorType: "adapter_error", IsRetryable: true},
	)}
	defer setupRunTest(orch, newMockCheckpoints())()

	out, err := execute(t, "run", "jsonl")
	require.Error(t, err)
	assert.ErrorContains(t, err, "upstream 500")
	assert.Contains(t, out, "FAIL  pmid-9")
}

func TestRunCmd_ResumeLoadsCompletedIDs(t *testing.T) {
	orch := &mockOrchestrator{stream: newMockStream(nil)}
	cps := newMockCheckpoints()
	cps.completed = map[string]struct{}{"pmid-1": {}, "pmid-2": {}}
	defer setupRunTest(orch, cps)()

	out, err := execute(t, "run", "jsonl", "--resume")
	require.NoError(t, err)

	assert.Contains(t, out, "Resuming: 2 document(s)")
	assert.Len(t, orch.lastReq.CompletedIDs, 2)
}

func TestRunCmd_FlagsFlowIntoRequest(t *testing.T) {
	orch := &mockOrchestrator{stream: newMockStream(nil)}
	defer setupRunTest(orch, newMockCheckpoints())()

	_, err := execute(t, "run", "jsonl",
		"--buffer", "16", "--progress-every", "5", "--checkpoint-every", "25", "--total", "1000")
	require.NoError(t, err)

	assert.Equal(t, 16, orch.lastReq.BufferSize)
	assert.Equal(t, 5, orch.lastReq.ProgressInterval)
	assert.Equal(t, 25, orch.lastReq.CheckpointInterval)
	assert.Equal(t, 1000, orch.lastReq.TotalEstimated)
}

func TestRunCmd_MalformedParam(t *testing.T) {
	orch := &mockOrchestrator{stream: newMockStream(nil)}
	defer setupRunTest(orch, newMockCheckpoints())()

	_, err := execute(t, "run", "jsonl", "--param", "no-equals-sign")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRunCmd_NotConfigured(t *testing.T) {
	defer setupRunTest(nil, nil)()
	orchestrator = nil

	_, err := execute(t, "run", "jsonl")
	assert.EqualError(t, err, "orchestrator not configured")
}

func TestRunCmd_StreamIsClosed(t *testing.T) {
	orch := &mockOrchestrator{stream: newMockStream(nil)}
	defer setupRunTest(orch, newMockCheckpoints())()

	_, err := execute(t, "run", "jsonl")
	require.NoError(t, err)
	assert.True(t, orch.stream.closed)
}
