// Package jsonl provides the built-in local feed adapter. It streams
// documents from a JSONL file, one document object per line, and is the
// reference implementation of the adapter contract: remote source
// adapters (literature APIs, trial registries) plug in through the same
// registry without the orchestrator knowing the difference.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

// Ensure Adapter implements the interface.
var _ driven.Adapter = (*Adapter)(nil)

// maxLineBytes bounds a single feed line. Lines beyond this indicate a
// malformed feed rather than a large document.
const maxLineBytes = 16 * 1024 * 1024

// feedRecord is the wire form of one feed line.
type feedRecord struct {
	DocID    string         `json:"doc_id"`
	Document any            `json:"document"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Adapter streams documents from JSONL feed files under a root
// directory. Each invocation names its file via the "path" parameter,
// resolved relative to the root.
type Adapter struct {
	root string

	mu     sync.Mutex
	emit   driven.EventEmitter
	closed bool
}

// New creates a feed adapter rooted at the given directory.
func New(root string) *Adapter {
	return &Adapter{root: root}
}

// Builder returns an AdapterBuilder for the registry. The feed adapter
// reads local files only, so the adapter context's ledger and HTTP
// client go unused.
func Builder(root string) driven.AdapterBuilder {
	return func(driven.AdapterContext) (driven.Adapter, error) {
		return New(root), nil
	}
}

// Name returns the adapter type identifier.
func (a *Adapter) Name() string {
	return "jsonl"
}

// Validate checks the feed root exists and is a directory.
func (a *Adapter) Validate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return domain.ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("feed root %s: %w", a.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("feed root %s: %w: not a directory", a.root, domain.ErrInvalidInput)
	}
	return nil
}

// BindEventEmitter registers the orchestrator's emitter.
func (a *Adapter) BindEventEmitter(emit driven.EventEmitter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emit = emit
}

// Close marks the adapter closed. Idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Results streams one feed file's documents. The "path" parameter is
// required and resolved under the adapter's root.
func (a *Adapter) Results(ctx context.Context, params map[string]any) (<-chan driven.Result, <-chan error) {
	results := make(chan driven.Result)
	errs := make(chan error, 1)

	go func() {
		defer close(results)
		defer close(errs)

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			errs <- domain.ErrStreamClosed
			return
		}
		a.mu.Unlock()

		path, err := a.feedPath(params)
		if err != nil {
			errs <- err
			return
		}

		f, err := os.Open(path)
		if err != nil {
			errs <- fmt.Errorf("opening feed %s: %w", path, err)
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var rec feedRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				errs <- fmt.Errorf("feed %s line %d: %w: %v", path, lineNo, domain.ErrInvalidInput, err)
				return
			}
			if rec.DocID == "" {
				errs <- fmt.Errorf("feed %s line %d: %w: missing doc_id", path, lineNo, domain.ErrInvalidInput)
				return
			}

			select {
			case <-ctx.Done():
				return
			case results <- driven.Result{
				DocID:    rec.DocID,
				Document: rec.Document,
				Metadata: rec.Metadata,
			}:
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("reading feed %s: %w", path, err)
		}
	}()

	return results, errs
}

// feedPath resolves the invocation's "path" parameter under the root.
func (a *Adapter) feedPath(params map[string]any) (string, error) {
	raw, ok := params["path"]
	if !ok {
		return "", fmt.Errorf("%w: missing path parameter", domain.ErrInvalidInput)
	}
	rel, ok := raw.(string)
	if !ok || rel == "" {
		return "", fmt.Errorf("%w: path parameter must be a non-empty string", domain.ErrInvalidInput)
	}
	if filepath.IsAbs(rel) {
		return rel, nil
	}
	return filepath.Join(a.root, rel), nil
}
