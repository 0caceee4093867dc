package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

func writeFeed(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func drain(t *testing.T, results <-chan driven.Result, errs <-chan error) ([]driven.Result, error) {
	t.Helper()
	var out []driven.Result
	var streamErr error
	for results != nil || errs != nil {
		select {
		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			out = append(out, r)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && streamErr == nil {
				streamErr = err
			}
		}
	}
	return out, streamErr
}

func TestResults_StreamsDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, "batch.jsonl",
		`{"doc_id":"pmid-1","document":{"title":"alpha"},"metadata":{"year":2024}}
{"doc_id":"pmid-2","document":{"title":"beta"}}

{"doc_id":"pmid-3","document":{"title":"gamma"}}
`)

	adapter := New(dir)
	defer adapter.Close()

	results, errs := adapter.Results(context.Background(), map[string]any{"path": "batch.jsonl"})
	docs, err := drain(t, results, errs)
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, "pmid-1", docs[0].DocID)
	assert.Equal(t, map[string]any{"year": float64(2024)}, docs[0].Metadata)
	assert.Equal(t, map[string]any{"title": "beta"}, docs[1].Document)
}

func TestResults_MissingDocIDFailsStream(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, "bad.jsonl",
		`{"doc_id":"pmid-1","document":{}}
{"document":{"title":"orphan"}}
{"doc_id":"pmid-3","document":{}}
`)

	adapter := New(dir)
	defer adapter.Close()

	results, errs := adapter.Results(context.Background(), map[string]any{"path": "bad.jsonl"})
	docs, err := drain(t, results, errs)

	// The stream terminates at the malformed line.
	assert.Len(t, docs, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorContains(t, err, "line 2")
}

func TestResults_MalformedJSONFailsStream(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, "bad.jsonl", `{"doc_id": not json`+"\n")

	adapter := New(dir)
	defer adapter.Close()

	results, errs := adapter.Results(context.Background(), map[string]any{"path": "bad.jsonl"})
	docs, err := drain(t, results, errs)

	assert.Empty(t, docs)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResults_MissingPathParameter(t *testing.T) {
	adapter := New(t.TempDir())
	defer adapter.Close()

	results, errs := adapter.Results(context.Background(), nil)
	_, err := drain(t, results, errs)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResults_MissingFile(t *testing.T) {
	adapter := New(t.TempDir())
	defer adapter.Close()

	results, errs := adapter.Results(context.Background(), map[string]any{"path": "absent.jsonl"})
	_, err := drain(t, results, errs)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResults_ContextCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, dir, "batch.jsonl",
		`{"doc_id":"pmid-1","document":{}}
{"doc_id":"pmid-2","document":{}}
`)

	ctx, cancel := context.WithCancel(context.Background())
	adapter := New(dir)
	defer adapter.Close()

	results, errs := adapter.Results(ctx, map[string]any{"path": "batch.jsonl"})

	// Take one result then cancel; the producer must shut down cleanly.
	<-results
	cancel()
	for range results {
	}
	for range errs {
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid root", func(t *testing.T) {
		adapter := New(t.TempDir())
		assert.NoError(t, adapter.Validate(context.Background()))
	})

	t.Run("missing root", func(t *testing.T) {
		adapter := New(filepath.Join(t.TempDir(), "absent"))
		assert.Error(t, adapter.Validate(context.Background()))
	})

	t.Run("root is a file", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFeed(t, dir, "f", "x")
		adapter := New(path)
		assert.ErrorIs(t, adapter.Validate(context.Background()), domain.ErrInvalidInput)
	})

	t.Run("closed adapter", func(t *testing.T) {
		adapter := New(t.TempDir())
		require.NoError(t, adapter.Close())
		assert.ErrorIs(t, adapter.Validate(context.Background()), domain.ErrStreamClosed)
	})
}

func TestResultsAfterClose(t *testing.T) {
	adapter := New(t.TempDir())
	require.NoError(t, adapter.Close())

	results, errs := adapter.Results(context.Background(), map[string]any{"path": "x"})
	_, err := drain(t, results, errs)
	assert.ErrorIs(t, err, domain.ErrStreamClosed)
}
