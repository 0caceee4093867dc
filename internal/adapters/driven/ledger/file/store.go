package file

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
	"github.com/biolit-labs/harvest-cli/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.Ledger = (*Store)(nil)

// Store is the file-backed durable ledger. All mutation and snapshot
// operations serialize behind one mutex; reads take the shared form and
// never observe a partially-applied transition.
type Store struct {
	mu sync.RWMutex

	logPath      string
	snapshotPath string
	log          *os.File

	entries     map[string]domain.LedgerEntry
	stateCounts map[domain.LedgerState]int

	autoSnapshotInterval time.Duration
	lastSnapshot         time.Time

	logger  logger.Logger
	metrics driven.Metrics

	// now is swappable for stuck-document tests.
	now func() time.Time

	closed bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithAutoSnapshotInterval enables opportunistic compaction: an update
// that notices the interval has elapsed since the last snapshot takes a
// snapshot under the same lock. A duration hint, not a hard scheduler;
// zero disables it.
func WithAutoSnapshotInterval(d time.Duration) StoreOption {
	return func(s *Store) { s.autoSnapshotInterval = d }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics backend for per-state gauges.
func WithMetrics(m driven.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// SnapshotPath returns the snapshot side-file path for a log path.
func SnapshotPath(logPath string) string {
	return logPath + ".snapshot.json"
}

// NewStore opens (or creates) the ledger at logPath. It loads the most
// recent snapshot, if any, as the baseline map and replays every audit
// record in the log after the snapshot's cut line. Any invalid or
// unparseable record fails with domain.ErrCorruptLedger: the store
// refuses to start against history it cannot unambiguously replay.
func NewStore(logPath string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		logPath:      logPath,
		snapshotPath: SnapshotPath(logPath),
		logger:       logger.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	entries, cutLine, err := LoadWithCompaction(s.snapshotPath, logPath)
	if err != nil {
		return nil, err
	}
	s.entries = entries
	s.lastSnapshot = cutLine
	if s.lastSnapshot.IsZero() {
		// No snapshot yet. Date the auto-snapshot clock from load time,
		// otherwise the first append would compact immediately.
		s.lastSnapshot = s.now()
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening ledger log: %w", err)
	}
	s.log = f

	s.stateCounts = make(map[domain.LedgerState]int)
	for _, e := range s.entries {
		s.stateCounts[e.State]++
	}
	s.publishGauges()

	s.logger.Info("ledger loaded",
		logger.String("path", logPath),
		logger.Int("documents", len(s.entries)))

	return s, nil
}

// UpdateState records a legal transition for a document. The audit
// record is durably flushed before the in-memory map is updated and
// before the call returns.
func (s *Store) UpdateState(docID string, newState domain.LedgerState, opts ...driven.UpdateOption) (*domain.AuditRecord, error) {
	if docID == "" {
		return nil, fmt.Errorf("update state: %w: empty doc id", domain.ErrInvalidInput)
	}
	// Strict entry point: no implicit string coercion. Anything outside
	// the closed enumeration is a caller bug.
	if !newState.IsValid() {
		return nil, fmt.Errorf("update state for %s: %w: %q", docID, domain.ErrUnknownState, string(newState))
	}

	var options driven.UpdateOptions
	for _, opt := range opts {
		opt(&options)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("update state for %s: ledger is closed", docID)
	}

	// Implicit PENDING predecessor for documents never seen before.
	oldState := domain.StatePending
	if entry, ok := s.entries[docID]; ok {
		oldState = entry.State
	}

	if err := domain.ValidateTransition(oldState, newState); err != nil {
		return nil, fmt.Errorf("update state for %s: %w", docID, err)
	}

	now := s.now().UTC()
	rec := &domain.AuditRecord{
		DocID:           docID,
		OldState:        oldState,
		NewState:        newState,
		Timestamp:       float64(now.UnixNano()) / float64(time.Second),
		Adapter:         options.Adapter,
		Metadata:        options.Metadata,
		Parameters:      options.Parameters,
		RetryCount:      options.RetryCount,
		DurationSeconds: options.Duration.Seconds(),
	}

	if err := s.appendLocked(rec); err != nil {
		return nil, err
	}

	entry := s.entries[docID].Apply(rec)
	s.entries[docID] = entry

	s.stateCounts[oldState]--
	if s.stateCounts[oldState] <= 0 {
		delete(s.stateCounts, oldState)
	}
	s.stateCounts[newState]++
	s.publishGauges()

	if s.autoSnapshotInterval > 0 && now.Sub(s.lastSnapshot) >= s.autoSnapshotInterval {
		if _, err := s.createSnapshotLocked(); err != nil {
			// Housekeeping only: the appended record is already durable.
			s.logger.Warn("auto snapshot failed", logger.Err(err))
		}
	}

	return rec, nil
}

// Record accepts a raw string state, resolving legacy aliases.
//
// Deprecated: call UpdateState with a domain.LedgerState.
func (s *Store) Record(docID, rawState string, opts ...driven.UpdateOption) (*domain.AuditRecord, error) {
	s.logger.Warn("ledger.Record is deprecated; use UpdateState with a typed state",
		logger.String("doc_id", docID),
		logger.String("raw_state", rawState))

	state, err := domain.ParseLedgerState(rawState)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", docID, err)
	}
	return s.UpdateState(docID, state, opts...)
}

// Get returns the entry for a document, or domain.ErrNotFound.
func (s *Store) Get(docID string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[docID]
	if !ok {
		return nil, fmt.Errorf("ledger entry %s: %w", docID, domain.ErrNotFound)
	}
	return &entry, nil
}

// Entries returns all entries, optionally filtered to the given states.
func (s *Store) Entries(states ...domain.LedgerState) []domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filter map[domain.LedgerState]bool
	if len(states) > 0 {
		filter = make(map[domain.LedgerState]bool, len(states))
		for _, st := range states {
			filter[st] = true
		}
	}

	out := make([]domain.LedgerEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if filter == nil || filter[entry.State] {
			out = append(out, entry)
		}
	}
	return out
}

// StuckDocuments returns non-terminal entries whose last update is older
// than threshold.
func (s *Store) StuckDocuments(threshold time.Duration) []domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().UTC().Add(-threshold)
	var out []domain.LedgerEntry
	for _, entry := range s.entries {
		if !entry.State.IsTerminal() && entry.UpdatedAt.Before(cutoff) {
			out = append(out, entry)
		}
	}
	return out
}

// CreateSnapshot materializes the full state map to the snapshot
// side-file and truncates the log. Startup afterwards loads the snapshot
// and replays only the short tail, so restart time is proportional to
// recent activity rather than total history.
func (s *Store) CreateSnapshot() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("create snapshot: ledger is closed")
	}
	return s.createSnapshotLocked()
}

// Close syncs and releases the log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.log.Sync(); err != nil {
		s.log.Close()
		return fmt.Errorf("syncing ledger log: %w", err)
	}
	return s.log.Close()
}

// appendLocked writes one record line and flushes it to disk.
// Callers hold the write lock.
func (s *Store) appendLocked(rec *domain.AuditRecord) error {
	line, err := rec.Encode()
	if err != nil {
		return err
	}
	if _, err := s.log.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	if err := s.log.Sync(); err != nil {
		return fmt.Errorf("flushing audit record: %w", err)
	}
	return nil
}

func (s *Store) publishGauges() {
	if s.metrics == nil {
		return
	}
	for _, state := range domain.AllStates() {
		s.metrics.StateCount(state, s.stateCounts[state])
	}
}
