package bus

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
var _ core.EventBus = (*InMemoryBus)(nil)

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewInMemoryBus()

	var (
		mu       sync.Mutex
		typed    []string
		wildcard []string
	)
	b.Subscribe(core.EventResultProcessed, func(_ context.Context, ev core.Event) {
		mu.Lock()
		defer mu.Unlock()
		typed = append(typed, ev.ResultID)
	})
	b.Subscribe("", func(_ context.Context, ev core.Event) {
		mu.Lock()
		defer mu.Unlock()
		wildcard = append(wildcard, ev.Type)
	})

	processed := core.NewEvent(core.EventResultProcessed)
	processed.ResultID = "res_1"
	require.NoError(t, b.Publish(context.Background(), processed))
	require.NoError(t, b.Publish(context.Background(), core.NewEvent(core.EventExecutionSummary)))

	assert.Equal(t, []string{"res_1"}, typed)
	assert.Equal(t, []string{core.EventResultProcessed, core.EventExecutionSummary}, wildcard)
	assert.Len(t, b.Events(), 2)
}

func TestInMemoryBus_CancelledContext(t *testing.T) {
	b := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Publish(ctx, core.NewEvent(core.EventResultProcessed)), context.Canceled)
	assert.Empty(t, b.Events())
}

func TestInMemoryBus_MaxHistory(t *testing.T) {
	b := NewInMemoryBus(func(o *InMemoryBusOptions) { o.MaxHistory = 3 })

	delivered := 0
	b.Subscribe("", func(context.Context, core.Event) { delivered++ })

	for i := 0; i < 5; i++ {
		ev := core.NewEvent(core.EventResultProcessed)
		ev.ResultID = fmt.Sprintf("res_%d", i)
		require.NoError(t, b.Publish(context.Background(), ev))
	}

	events := b.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "res_2", events[0].ResultID)
	assert.Equal(t, "res_4", events[2].ResultID)
	assert.Equal(t, 5, delivered)
}
