package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driving"
	"github.com/biolit-labs/harvest-cli/internal/logger"
)

// Ensure StreamingOrchestrator implements the interface.
var _ driving.Orchestrator = (*StreamingOrchestrator)(nil)

const (
	defaultBufferSize         = 64
	defaultProgressInterval   = 10
	defaultCheckpointInterval = 100
)

// StreamingOrchestrator drives one adapter across one or more
// invocations, turning adapter activity into a single ordered,
// backpressured event stream while recording ledger transitions.
//
// Invocations run strictly in sequence within one producer goroutine, so
// event order (and the order of ledger-visible side effects) is
// deterministic per run.
type StreamingOrchestrator struct {
	registry driven.AdapterRegistry
	ledger   driven.Ledger
	client   *http.Client
	metrics  driven.Metrics
	logger   logger.Logger
}

// NewStreamingOrchestrator creates an orchestrator. The registry is
// required; ledger may be nil for runs that do not record lifecycle
// state; metrics may be nil (a no-op is substituted); client defaults to
// http.DefaultClient.
func NewStreamingOrchestrator(
	registry driven.AdapterRegistry,
	ledger driven.Ledger,
	client *http.Client,
	metrics driven.Metrics,
	log logger.Logger,
) *StreamingOrchestrator {
	if client == nil {
		client = http.DefaultClient
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StreamingOrchestrator{
		registry: registry,
		ledger:   ledger,
		client:   client,
		metrics:  metrics,
		logger:   log,
	}
}

// eventStream is the live handle for one run.
type eventStream struct {
	events chan domain.PipelineEvent
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Events implements driving.Stream.
func (s *eventStream) Events() <-chan domain.PipelineEvent { return s.events }

// Close cancels the producer and waits for it to finish, so no
// background work leaks past the call. Safe to call more than once.
func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// Err implements driving.Stream.
func (s *eventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *eventStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// StreamEvents starts one run and returns its event stream. The adapter
// and HTTP client are owned by the run's single producer goroutine and
// released on every exit path.
func (o *StreamingOrchestrator) StreamEvents(ctx context.Context, req driving.StreamRequest) (driving.Stream, error) {
	if req.Source == "" {
		return nil, fmt.Errorf("stream events: %w: empty source", domain.ErrInvalidInput)
	}
	if req.BufferSize <= 0 {
		req.BufferSize = defaultBufferSize
	}
	if req.ProgressInterval <= 0 {
		req.ProgressInterval = defaultProgressInterval
	}
	if req.CheckpointInterval <= 0 {
		req.CheckpointInterval = defaultCheckpointInterval
	}
	if len(req.Invocations) == 0 {
		req.Invocations = []map[string]any{nil}
	}

	adapter, err := o.registry.Get(ctx, req.Source, driven.AdapterContext{
		Ledger: o.ledger,
		Client: o.client,
	})
	if err != nil {
		return nil, fmt.Errorf("get adapter %s: %w", req.Source, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream := &eventStream{
		events: make(chan domain.PipelineEvent, req.BufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go o.produce(runCtx, adapter, req, stream)

	return stream, nil
}

// Run drains a whole run into a slice. For small batches only.
func (o *StreamingOrchestrator) Run(ctx context.Context, req driving.StreamRequest) ([]domain.PipelineEvent, error) {
	stream, err := o.StreamEvents(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var events []domain.PipelineEvent
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	return events, stream.Err()
}

// IterResults narrows the stream to completed documents. Callers must
// either drain the returned channel or cancel ctx; abandoning the
// channel while ctx stays live leaks the bridging goroutine.
func (o *StreamingOrchestrator) IterResults(ctx context.Context, req driving.StreamRequest) (<-chan domain.DocumentCompleted, error) {
	stream, err := o.StreamEvents(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.DocumentCompleted)
	go func() {
		defer close(out)
		defer stream.Close()
		for ev := range stream.Events() {
			completed, ok := ev.(domain.DocumentCompleted)
			if !ok {
				continue
			}
			select {
			case out <- completed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// runState is the bookkeeping for one producer.
type runState struct {
	pipelineID string
	adapter    string

	completed int
	failed    int
	inFlight  int

	// currentDocID is the document being processed, empty between
	// documents. Names the victim on fail-fast.
	currentDocID string

	// currentRetryCount is the retry pass of the current document,
	// zero on first delivery.
	currentRetryCount int

	totalEstimated  int
	sinceCheckpoint []string
	lastCheckpoint  time.Time
	durationSum     time.Duration

	// backpressureNanos accumulates producer suspension time; atomic
	// because adapter-internal emitters may queue from another goroutine.
	backpressureNanos atomic.Int64
}

// produce is the single producer goroutine of one run.
func (o *StreamingOrchestrator) produce(ctx context.Context, adapter driven.Adapter, req driving.StreamRequest, stream *eventStream) {
	defer close(stream.done)
	defer close(stream.events)

	runStart := time.Now()
	defer func() {
		o.metrics.RunDuration(time.Since(runStart))
	}()

	// Scoped acquisition: the adapter and HTTP client are released on
	// every exit path.
	defer func() {
		if err := adapter.Close(); err != nil {
			o.logger.Warn("closing adapter", logger.Err(err))
		}
		o.client.CloseIdleConnections()
	}()

	rs := &runState{
		pipelineID:     uuid.NewString(),
		adapter:        adapter.Name(),
		totalEstimated: req.TotalEstimated,
		lastCheckpoint: runStart,
	}

	emit := func(ev domain.PipelineEvent) bool {
		return o.emit(ctx, stream, req, rs, ev)
	}

	adapter.BindEventEmitter(func(ev domain.PipelineEvent) { emit(ev) })
	defer adapter.BindEventEmitter(nil)

	phase := domain.PhaseInitialising
	changePhase := func(next domain.AdapterPhase, reason string) bool {
		ok := emit(domain.AdapterStateChange{
			Adapter:  rs.adapter,
			OldPhase: phase,
			NewPhase: next,
			Reason:   reason,
		})
		phase = next
		return ok
	}

	// finish emits the unconditional final checkpoint. Best-effort when
	// the consumer is already gone.
	finish := func() {
		progress := o.progressEvent(rs, stream, true)
		rs.sinceCheckpoint = nil
		o.metrics.CheckpointLatency(time.Since(rs.lastCheckpoint))
		rs.lastCheckpoint = time.Now()
		if !emit(progress) {
			// Consumer abandoned the stream: try once without blocking
			// so a still-draining consumer sees the checkpoint.
			select {
			case stream.events <- o.fillMeta(progress, rs):
			default:
			}
		}
	}

	if err := adapter.Validate(ctx); err != nil {
		err = fmt.Errorf("%w: %s: %v", domain.ErrAdapterValidation, rs.adapter, err)
		o.failRun(rs, err, emit, changePhase)
		stream.setErr(err)
		finish()
		return
	}
	changePhase(domain.PhaseReady, "")

	o.logger.Info("run started",
		logger.String("pipeline_id", rs.pipelineID),
		logger.String("adapter", rs.adapter),
		logger.Int("invocations", len(req.Invocations)))

	for i, params := range req.Invocations {
		changePhase(domain.PhaseInvocationStarted, fmt.Sprintf("invocation %d/%d", i+1, len(req.Invocations)))

		if err := o.driveInvocation(ctx, adapter, req, rs, stream, params, emit); err != nil {
			// Fail fast: one DocumentFailed and one terminal phase
			// change, then the whole run terminates. Remaining queued
			// invocations are not attempted; callers resume via the
			// ledger and the checkpoint's completed ids.
			o.failRun(rs, err, emit, changePhase)
			stream.setErr(err)
			finish()
			return
		}
		if ctx.Err() != nil {
			stream.setErr(ctx.Err())
			finish()
			return
		}
		changePhase(domain.PhaseInvocationCompleted, "")
	}

	changePhase(domain.PhaseCompleted, "")
	finish()

	o.logger.Info("run completed",
		logger.String("pipeline_id", rs.pipelineID),
		logger.Int("completed", rs.completed),
		logger.Int("failed", rs.failed))
}

// driveInvocation consumes one invocation's result stream. A non-nil
// return is fatal for the whole run.
func (o *StreamingOrchestrator) driveInvocation(
	ctx context.Context,
	adapter driven.Adapter,
	req driving.StreamRequest,
	rs *runState,
	stream *eventStream,
	params map[string]any,
	emit func(domain.PipelineEvent) bool,
) error {
	results, errs := adapter.Results(ctx, params)

	for results != nil || errs != nil {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("adapter %s: %w", rs.adapter, err)
			}

		case result, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if err := o.processResult(req, rs, stream, params, result, emit); err != nil {
				return err
			}
		}
	}
	return nil
}

// processResult converts one adapter result into ledger transitions and
// events. Each transition is persisted durably before the orchestrator
// advances.
func (o *StreamingOrchestrator) processResult(
	req driving.StreamRequest,
	rs *runState,
	stream *eventStream,
	params map[string]any,
	result driven.Result,
	emit func(domain.PipelineEvent) bool,
) error {
	// Resume deduplication: already-completed documents are skipped
	// without events or ledger transitions.
	if _, done := req.CompletedIDs[result.DocID]; done {
		return nil
	}

	plan, err := o.planTransitions(result.DocID)
	if err != nil {
		return err
	}

	start := time.Now()
	rs.inFlight = 1
	rs.currentDocID = result.DocID
	rs.currentRetryCount = plan.retryCount

	if plan.retrying {
		if _, err := o.ledger.UpdateState(result.DocID, domain.StateRetrying,
			driven.WithAdapter(rs.adapter),
			driven.WithRetryCount(plan.retryCount)); err != nil {
			return fmt.Errorf("recording retry for %s: %w", result.DocID, err)
		}
	}

	if plan.fetching {
		if _, err := o.ledger.UpdateState(result.DocID, domain.StateFetching,
			driven.WithAdapter(rs.adapter),
			driven.WithParameters(params)); err != nil {
			return fmt.Errorf("recording fetch start for %s: %w", result.DocID, err)
		}
	}

	emit(domain.DocumentStarted{
		DocID:      result.DocID,
		Adapter:    rs.adapter,
		Parameters: params,
	})

	if plan.fetched {
		if _, err := o.ledger.UpdateState(result.DocID, domain.StateFetched,
			driven.WithAdapter(rs.adapter),
			driven.WithMetadata(result.Metadata),
			driven.WithDuration(time.Since(start))); err != nil {
			return fmt.Errorf("recording fetch completion for %s: %w", result.DocID, err)
		}
	}

	duration := time.Since(start)
	rs.inFlight = 0
	rs.currentDocID = ""
	rs.currentRetryCount = 0
	rs.completed++
	rs.durationSum += duration
	rs.sinceCheckpoint = append(rs.sinceCheckpoint, result.DocID)

	emit(domain.DocumentCompleted{
		DocID:           result.DocID,
		Document:        result.Document,
		Duration:        duration,
		AdapterMetadata: result.Metadata,
	})

	if rs.completed%req.CheckpointInterval == 0 {
		progress := o.progressEvent(rs, stream, true)
		rs.sinceCheckpoint = nil
		o.metrics.CheckpointLatency(time.Since(rs.lastCheckpoint))
		rs.lastCheckpoint = time.Now()
		emit(progress)
	} else if rs.completed%req.ProgressInterval == 0 {
		emit(o.progressEvent(rs, stream, false))
	}
	return nil
}

// transitionPlan is the set of ledger writes one result needs.
type transitionPlan struct {
	retrying   bool
	fetching   bool
	fetched    bool
	retryCount int
}

// planTransitions decides the ledger writes for a delivered document.
// Redelivery is the normal case under at-least-once: a document already
// at or past FETCHED is reprocessed without any ledger write, a FAILED
// document is routed through RETRYING, and a document a crash left at
// FETCHING only gets the completion write.
func (o *StreamingOrchestrator) planTransitions(docID string) (transitionPlan, error) {
	if o.ledger == nil {
		return transitionPlan{}, nil
	}

	plan := transitionPlan{fetching: true, fetched: true}
	entry, err := o.ledger.Get(docID)
	if errors.Is(err, domain.ErrNotFound) {
		return plan, nil
	}
	if err != nil {
		return transitionPlan{}, fmt.Errorf("inspecting ledger for %s: %w", docID, err)
	}

	switch entry.State {
	case domain.StatePending, domain.StateRetrying:
	case domain.StateFetching:
		plan.fetching = false
	case domain.StateFailed:
		plan.retrying = true
		plan.retryCount = entry.RetryCount + 1
	default:
		// Already at or past FETCHED.
		plan = transitionPlan{}
	}
	return plan, nil
}

// failRun records the failed document (when the ledger is present),
// emits exactly one DocumentFailed and the terminal phase change.
func (o *StreamingOrchestrator) failRun(
	rs *runState,
	err error,
	emit func(domain.PipelineEvent) bool,
	changePhase func(domain.AdapterPhase, string) bool,
) {
	rs.failed++
	rs.inFlight = 0

	if rs.currentDocID != "" && o.ledger != nil {
		if _, lerr := o.ledger.UpdateState(rs.currentDocID, domain.StateFailed,
			driven.WithAdapter(rs.adapter),
			driven.WithRetryCount(rs.currentRetryCount)); lerr != nil {
			o.logger.Warn("recording failed state",
				logger.String("doc_id", rs.currentDocID),
				logger.Err(lerr))
		}
	}

	emit(domain.DocumentFailed{
		DocID:       rs.currentDocID,
		Err:         err,
		ErrorType:   classifyError(err),
		RetryCount:  rs.currentRetryCount,
		IsRetryable: isRetryable(err),
	})
	changePhase(domain.PhaseFailed, err.Error())

	o.logger.Error("run failed",
		logger.String("pipeline_id", rs.pipelineID),
		logger.String("adapter", rs.adapter),
		logger.Err(err))
}

// emit fills the envelope, applies filter/transformer, and queues the
// event. Returns false once the run context is cancelled. The time the
// producer spends suspended on a full channel is the backpressure the
// bounded buffer applies.
func (o *StreamingOrchestrator) emit(
	ctx context.Context,
	stream *eventStream,
	req driving.StreamRequest,
	rs *runState,
	ev domain.PipelineEvent,
) bool {
	ev = o.fillMeta(ev, rs)

	if req.Filter != nil && !req.Filter(ev) {
		return true
	}
	if req.Transformer != nil {
		var keep bool
		if ev, keep = req.Transformer(ev); !keep {
			return true
		}
	}

	select {
	case stream.events <- ev:
	default:
		waitStart := time.Now()
		select {
		case stream.events <- ev:
			rs.backpressureNanos.Add(int64(time.Since(waitStart)))
		case <-ctx.Done():
			return false
		}
	}

	o.metrics.EventEmitted(ev.Kind())
	o.metrics.QueueDepth(len(stream.events))
	return true
}

// fillMeta completes the event envelope when the producer left it empty.
func (o *StreamingOrchestrator) fillMeta(ev domain.PipelineEvent, rs *runState) domain.PipelineEvent {
	meta := ev.Meta()
	if meta.PipelineID != "" && !meta.Timestamp.IsZero() {
		return ev
	}
	if meta.PipelineID == "" {
		meta.PipelineID = rs.pipelineID
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}

	switch e := ev.(type) {
	case domain.DocumentStarted:
		e.EventMeta = meta
		return e
	case domain.DocumentCompleted:
		e.EventMeta = meta
		return e
	case domain.DocumentFailed:
		e.EventMeta = meta
		return e
	case domain.AdapterStateChange:
		e.EventMeta = meta
		return e
	case domain.BatchProgress:
		e.EventMeta = meta
		return e
	default:
		return ev
	}
}

// progressEvent builds a BatchProgress from the current counters.
func (o *StreamingOrchestrator) progressEvent(rs *runState, stream *eventStream, checkpoint bool) domain.BatchProgress {
	remaining := -1
	var eta float64
	if rs.totalEstimated > 0 {
		remaining = rs.totalEstimated - rs.completed - rs.failed
		if remaining < 0 {
			remaining = 0
		}
		if rs.completed > 0 && remaining > 0 {
			mean := rs.durationSum / time.Duration(rs.completed)
			eta = (mean * time.Duration(remaining)).Seconds()
		}
	}

	queueDepth := 0
	if stream != nil {
		queueDepth = len(stream.events)
	}

	progress := domain.BatchProgress{
		CompletedCount:          rs.completed,
		FailedCount:             rs.failed,
		InFlightCount:           rs.inFlight,
		QueueDepth:              queueDepth,
		Remaining:               remaining,
		ETASeconds:              eta,
		BackpressureWaitSeconds: time.Duration(rs.backpressureNanos.Load()).Seconds(),
		IsCheckpoint:            checkpoint,
	}
	if checkpoint {
		progress.CheckpointDocIDs = append([]string(nil), rs.sinceCheckpoint...)
	}
	return progress
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrAdapterValidation):
		return "validation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "adapter_error"
	}
}

func isRetryable(err error) bool {
	return !errors.Is(err, domain.ErrAdapterValidation)
}

// nopMetrics keeps the hot path branch-free when no backend is wired.
type nopMetrics struct{}

func (nopMetrics) EventEmitted(domain.EventKind)      {}
func (nopMetrics) RunDuration(time.Duration)          {}
func (nopMetrics) QueueDepth(int)                     {}
func (nopMetrics) CheckpointLatency(time.Duration)    {}
func (nopMetrics) StateCount(domain.LedgerState, int) {}
