package file

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/logger"
)

// snapshotWire is the on-disk snapshot format: the cut-line timestamp
// the snapshot supersedes plus the full doc_id -> entry map.
type snapshotWire struct {
	// CreatedAt is the cut line in unix seconds UTC. Records flushed
	// after this instant live in the log tail.
	CreatedAt float64 `json:"created_at"`

	// Entries maps doc_id to its materialized state.
	Entries map[string]snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	State     string         `json:"state"`
	UpdatedAt float64        `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// createSnapshotLocked serializes the current map to the snapshot
// side-file (temp file + atomic rename), then truncates the log.
// Callers hold the write lock.
func (s *Store) createSnapshotLocked() (string, error) {
	now := s.now().UTC()

	wire := snapshotWire{
		CreatedAt: toUnixSeconds(now),
		Entries:   make(map[string]snapshotEntry, len(s.entries)),
	}
	for docID, entry := range s.entries {
		wire.Entries[docID] = snapshotEntry{
			State:     entry.State.String(),
			UpdatedAt: toUnixSeconds(entry.UpdatedAt),
			Metadata:  entry.Metadata,
		}
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	// tmp + rename keeps the previous snapshot intact if this write is
	// interrupted; the untruncated log still covers the difference.
	tmpPath := s.snapshotPath + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("flushing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.snapshotPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("publishing snapshot: %w", err)
	}

	// Compaction: records up to the cut line are superseded by the
	// snapshot, so the log restarts empty.
	if err := s.log.Truncate(0); err != nil {
		return "", fmt.Errorf("truncating ledger log: %w", err)
	}
	s.lastSnapshot = now

	s.logger.Info("ledger snapshot created",
		logger.String("path", s.snapshotPath),
		logger.Int("documents", len(s.entries)))

	return s.snapshotPath, nil
}

// LoadWithCompaction is the explicit, side-effect-free startup
// algorithm: load the snapshot at snapshotPath (if present) as the
// baseline map, then replay every audit record in the log at logPath as
// a fold over it, validating each transition. It returns the resulting
// map and the snapshot cut line (zero when no snapshot exists).
//
// Any record that cannot be decoded, any illegal transition, and any
// record discontinuous with the folded state fail with
// domain.ErrCorruptLedger.
func LoadWithCompaction(snapshotPath, logPath string) (map[string]domain.LedgerEntry, time.Time, error) {
	entries := make(map[string]domain.LedgerEntry)
	var cutLine time.Time

	snapData, err := os.ReadFile(snapshotPath)
	switch {
	case err == nil:
		var wire snapshotWire
		if err := json.Unmarshal(snapData, &wire); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: unreadable snapshot %s: %v", domain.ErrCorruptLedger, snapshotPath, err)
		}
		for docID, se := range wire.Entries {
			state, err := domain.ParseLedgerState(se.State)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("%w: snapshot entry %s: %v", domain.ErrCorruptLedger, docID, err)
			}
			entries[docID] = domain.LedgerEntry{
				DocID:     docID,
				State:     state,
				UpdatedAt: fromUnixSeconds(se.UpdatedAt),
				Metadata:  se.Metadata,
			}
		}
		cutLine = fromUnixSeconds(wire.CreatedAt)
	case errors.Is(err, os.ErrNotExist):
		// No snapshot: full-history replay from the log alone.
	default:
		return nil, time.Time{}, fmt.Errorf("reading snapshot: %w", err)
	}

	if err := replayLog(logPath, entries); err != nil {
		return nil, time.Time{}, err
	}
	return entries, cutLine, nil
}

// replayLog folds every record of the log file into entries.
func replayLog(logPath string, entries map[string]domain.LedgerEntry) error {
	f, err := os.Open(logPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening ledger log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		rec, err := domain.DecodeAuditRecord(line)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", domain.ErrCorruptLedger, lineNo, err)
		}

		current := domain.StatePending
		if entry, ok := entries[rec.DocID]; ok {
			current = entry.State
		}
		if rec.OldState != current {
			return fmt.Errorf("%w: line %d: record for %s leaves %s but document is in %s",
				domain.ErrCorruptLedger, lineNo, rec.DocID, rec.OldState, current)
		}
		if err := domain.ValidateTransition(rec.OldState, rec.NewState); err != nil {
			return fmt.Errorf("%w: line %d: %v", domain.ErrCorruptLedger, lineNo, err)
		}

		entries[rec.DocID] = entries[rec.DocID].Apply(rec)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %v", domain.ErrCorruptLedger, err)
		}
		return fmt.Errorf("reading ledger log: %w", err)
	}
	return nil
}
