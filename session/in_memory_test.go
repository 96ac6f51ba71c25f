package session

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ core.SessionStore  = (*InMemoryStore)(nil)
	_ core.ChannelBridge = (*ChannelBridge)(nil)
)

func TestInMemoryStore_LazyCreateAndIsolation(t *testing.T) {
	store := NewInMemoryStore()
	sess, err := store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)

	sess.SetState("local", true)
	again, _ := store.Get("s1")
	_, ok := again.GetState("local")
	assert.False(t, ok)

	require.NoError(t, store.ApplyDelta("s1", map[string]any{"k": "v"}))
	again, _ = store.Get("s1")
	v, ok := again.GetState("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	fresh, err := store.Create("s1")
	require.NoError(t, err)
	assert.Empty(t, fresh.State)
}

func TestInMemoryStore_ConcurrentAppend(t *testing.T) {
	store := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.AppendEvent("s", core.NewEvent(core.EventResultProcessed)))
			_, _ = store.Get("s")
		}()
	}
	wg.Wait()
	sess, _ := store.Get("s")
	assert.Len(t, sess.GetEvents(), 20)
}

func TestChannelBridge_PushExecutionSummary(t *testing.T) {
	store := NewInMemoryStore()
	bridge := NewChannelBridge(store, nil)

	err := bridge.PushExecutionSummary(context.Background(), "ctx_1", core.ExecutionSummary{
		TrackingID:       "trk_1",
		ResultID:         "res_1",
		ContextPackageID: "ctx_1",
		AgentID:          "analyst",
		Status:           core.StatusFailed,
		ErrorMessage:     "timeout",
		ExecutionTimeMs:  12,
	})
	require.NoError(t, err)

	sess, _ := store.Get("ctx_1")
	events := sess.EventsOfType(core.EventExecutionSummary)
	require.Len(t, events, 1)
	assert.Equal(t, "trk_1", events[0].TrackingID)
	assert.Equal(t, "failed", events[0].Payload["status"])
	assert.Equal(t, "timeout", events[0].Payload["error_message"])

	last, _ := sess.GetState(StateLastResultID)
	assert.Equal(t, "res_1", last)

	assert.Error(t, bridge.PushExecutionSummary(context.Background(), "", core.ExecutionSummary{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bridge.PushExecutionSummary(ctx, "ctx_1", core.ExecutionSummary{}), context.Canceled)
}
