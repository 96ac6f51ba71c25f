package audit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var _ core.AuditLog = (*InMemoryLog)(nil)

func TestInMemoryLog_RecordAndQuery(t *testing.T) {
	log := NewInMemoryLog()
	details := map[string]any{"entries": []any{"kn_1"}}

	require.NoError(t, log.Record(core.AuditEntry{TrackingID: "trk_1", ResultID: "res_1", Stage: core.StageResultReceived}))
	require.NoError(t, log.Record(core.AuditEntry{TrackingID: "trk_1", ResultID: "res_1", Stage: core.StageKnowledgeWritten, Details: details}))
	require.NoError(t, log.Record(core.AuditEntry{TrackingID: "trk_2", ResultID: "res_2", Stage: core.StageResultReceived}))

	details["entries"] = "mutated"

	entries := log.ByResult("res_1")
	require.Len(t, entries, 2)
	assert.Equal(t, core.StageResultReceived, entries[0].Stage)
	assert.Equal(t, core.StageKnowledgeWritten, entries[1].Stage)
	assert.Equal(t, []any{"kn_1"}, entries[1].Details["entries"])
	assert.False(t, entries[0].Timestamp.IsZero())

	assert.Len(t, log.ByTracking("trk_2"), 1)
	assert.Empty(t, log.ByResult("res_unknown"))
	assert.Len(t, log.All(), 3)
}

func TestInMemoryLog_ConcurrentRecord(t *testing.T) {
	log := NewInMemoryLog()
	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			trk := fmt.Sprintf("trk_%d", w)
			for i := 0; i < 10; i++ {
				assert.NoError(t, log.Record(core.AuditEntry{TrackingID: trk, ResultID: trk, Stage: core.StageResultReceived}))
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, log.All(), 50)
	for w := 0; w < 5; w++ {
		assert.Len(t, log.ByTracking(fmt.Sprintf("trk_%d", w)), 10)
	}
}
