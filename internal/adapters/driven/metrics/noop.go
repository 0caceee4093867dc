package metrics

import (
	"time"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

// Noop is a metrics backend that discards everything.
type Noop struct{}

var _ driven.Metrics = Noop{}

// NewNoop creates a no-op metrics backend.
func NewNoop() Noop { return Noop{} }

func (Noop) EventEmitted(domain.EventKind)      {}
func (Noop) RunDuration(time.Duration)          {}
func (Noop) QueueDepth(int)                     {}
func (Noop) CheckpointLatency(time.Duration)    {}
func (Noop) StateCount(domain.LedgerState, int) {}
