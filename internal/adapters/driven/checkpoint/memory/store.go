// Package memory provides an in-memory checkpoint store for tests and
// single-shot runs where resume across processes is not needed.
package memory

import (
	"context"
	"sync"

	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

// Store is an in-memory checkpoint store. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	scopes map[string]map[string]struct{}
}

var _ driven.CheckpointStore = (*Store)(nil)

// NewStore creates an empty in-memory checkpoint store.
func NewStore() *Store {
	return &Store{scopes: make(map[string]map[string]struct{})}
}

// SaveCheckpoint appends the given ids to the scope's completed set.
func (s *Store) SaveCheckpoint(_ context.Context, scope string, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.scopes[scope]
	if !ok {
		set = make(map[string]struct{}, len(docIDs))
		s.scopes[scope] = set
	}
	for _, docID := range docIDs {
		set[docID] = struct{}{}
	}
	return nil
}

// CompletedIDs returns a copy of the scope's completed set.
func (s *Store) CompletedIDs(_ context.Context, scope string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.scopes[scope]))
	for docID := range s.scopes[scope] {
		out[docID] = struct{}{}
	}
	return out, nil
}

// Clear removes the scope's completed set.
func (s *Store) Clear(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes, scope)
	return nil
}
