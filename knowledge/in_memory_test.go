package knowledge

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var _ core.KnowledgeStore = (*InMemoryStore)(nil)

func TestInMemoryStore_CreateGetSearch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	id, err := store.Create(ctx, core.KnowledgeEntry{
		Title:    "Q3 revenue",
		Content:  "Revenue grew 12% in APAC",
		Category: "fact",
		Tags:     []string{"sales"},
		Metadata: core.Values{core.MetaSourceResultID: core.StringValue("res_1")},
	})
	require.NoError(t, err)
	assert.Contains(t, id, core.EntryPrefix)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "fact", got.Category)
	assert.False(t, got.CreatedAt.IsZero())
	src, _ := got.Metadata[core.MetaSourceResultID].Str()
	assert.Equal(t, "res_1", src)

	got.Tags[0] = "mutated"
	again, _ := store.Get(ctx, id)
	assert.Equal(t, []string{"sales"}, again.Tags)

	_, err = store.Create(ctx, core.KnowledgeEntry{Title: "Churn", Content: "stable", Tags: []string{"retention"}})
	require.NoError(t, err)

	res, err := store.Search(ctx, "apac")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, id, res[0].ID)

	res, _ = store.Search(ctx, "RETENTION")
	assert.Len(t, res, 1)

	res, _ = store.Search(ctx, "")
	assert.Len(t, res, 2)
	assert.Equal(t, id, res[0].ID)

	_, err = store.Get(ctx, "kn_missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = store.Create(ctx, core.KnowledgeEntry{ID: id, Title: "dup"})
	assert.ErrorIs(t, err, core.ErrDuplicateID)
}

func TestInMemoryStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]bool{}
	)
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				id, err := store.Create(ctx, core.KnowledgeEntry{Title: fmt.Sprintf("w%d-%d", w, i), Content: "c"})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[id] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, ids, 50)
	assert.Equal(t, 50, store.Len())
	all, _ := store.Search(ctx, "")
	assert.Len(t, all, 50)
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewInMemoryStore().Create(ctx, core.KnowledgeEntry{Title: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
