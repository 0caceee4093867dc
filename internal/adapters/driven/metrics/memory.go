// Package metrics provides driven.Metrics implementations: a no-op
// backend and an in-process recorder whose snapshot feeds the CLI's
// run summary.
package metrics

import (
	"sync"
	"time"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

// Snapshot is a point-in-time copy of everything the recorder has seen.
type Snapshot struct {
	// EventCounts maps event kind to the number of times it was emitted.
	EventCounts map[domain.EventKind]int

	// RunDurations holds one entry per finished run.
	RunDurations []time.Duration

	// MaxQueueDepth is the deepest the event buffer got.
	MaxQueueDepth int

	// CheckpointLatencies holds the gap between consecutive checkpoints.
	CheckpointLatencies []time.Duration

	// StateCounts is the last reported gauge per ledger state.
	StateCounts map[domain.LedgerState]int
}

// Recorder is an in-process metrics backend. Safe for concurrent use.
type Recorder struct {
	mu                  sync.Mutex
	eventCounts         map[domain.EventKind]int
	runDurations        []time.Duration
	maxQueueDepth       int
	checkpointLatencies []time.Duration
	stateCounts         map[domain.LedgerState]int
}

var _ driven.Metrics = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		eventCounts: make(map[domain.EventKind]int),
		stateCounts: make(map[domain.LedgerState]int),
	}
}

// EventEmitted implements driven.Metrics.
func (r *Recorder) EventEmitted(kind domain.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventCounts[kind]++
}

// RunDuration implements driven.Metrics.
func (r *Recorder) RunDuration(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runDurations = append(r.runDurations, d)
}

// QueueDepth implements driven.Metrics.
func (r *Recorder) QueueDepth(depth int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if depth > r.maxQueueDepth {
		r.maxQueueDepth = depth
	}
}

// CheckpointLatency implements driven.Metrics.
func (r *Recorder) CheckpointLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpointLatencies = append(r.checkpointLatencies, d)
}

// StateCount implements driven.Metrics.
func (r *Recorder) StateCount(state domain.LedgerState, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateCounts[state] = count
}

// Snapshot returns a copy of the current counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		EventCounts:         make(map[domain.EventKind]int, len(r.eventCounts)),
		RunDurations:        append([]time.Duration(nil), r.runDurations...),
		MaxQueueDepth:       r.maxQueueDepth,
		CheckpointLatencies: append([]time.Duration(nil), r.checkpointLatencies...),
		StateCounts:         make(map[domain.LedgerState]int, len(r.stateCounts)),
	}
	for kind, count := range r.eventCounts {
		snap.EventCounts[kind] = count
	}
	for state, count := range r.stateCounts {
		snap.StateCounts[state] = count
	}
	return snap
}
