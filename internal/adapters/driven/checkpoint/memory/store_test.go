package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveCheckpoint(ctx, "pubmed", []string{"doc-1", "doc-2"}))
	require.NoError(t, store.SaveCheckpoint(ctx, "pubmed", []string{"doc-2", "doc-3"}))

	completed, err := store.CompletedIDs(ctx, "pubmed")
	require.NoError(t, err)
	assert.Len(t, completed, 3)
}

func TestUnknownScopeIsEmpty(t *testing.T) {
	store := NewStore()

	completed, err := store.CompletedIDs(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.NotNil(t, completed)
	assert.Empty(t, completed)
}

func TestClear(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveCheckpoint(ctx, "pubmed", []string{"doc-1"}))
	require.NoError(t, store.Clear(ctx, "pubmed"))

	completed, err := store.CompletedIDs(ctx, "pubmed")
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestCompletedIDsReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveCheckpoint(ctx, "pubmed", []string{"doc-1"}))

	completed, err := store.CompletedIDs(ctx, "pubmed")
	require.NoError(t, err)
	completed["doc-2"] = struct{}{}

	again, err := store.CompletedIDs(ctx, "pubmed")
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestConcurrentSaves(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("doc-%d-%d", n, j)
				assert.NoError(t, store.SaveCheckpoint(ctx, "pubmed", []string{id}))
			}
		}(i)
	}
	wg.Wait()

	completed, err := store.CompletedIDs(ctx, "pubmed")
	require.NoError(t, err)
	assert.Len(t, completed, 400)
}
