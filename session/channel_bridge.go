package session

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// State key holding the id of the last result summarized in a session.
const StateLastResultID = "last_result_id"

// ChannelBridge pushes execution summaries into a session's event history.
type ChannelBridge struct {
	store  core.SessionStore
	logger logging.Logger
}

// NewChannelBridge creates a bridge writing to store.
func NewChannelBridge(store core.SessionStore, logger logging.Logger) *ChannelBridge {
	return &ChannelBridge{store: store, logger: logging.OrNoOp(logger)}
}

// PushExecutionSummary appends an execution.summary event and records the
// result id in the session state.
func (b *ChannelBridge) PushExecutionSummary(ctx context.Context, sessionID string, summary core.ExecutionSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sessionID == "" {
		return fmt.Errorf("push execution summary: empty session id")
	}

	ev := core.NewEvent(core.EventExecutionSummary)
	ev.TrackingID = summary.TrackingID
	ev.ResultID = summary.ResultID
	ev.ContextPackageID = summary.ContextPackageID
	ev.AgentID = summary.AgentID
	ev.Payload = map[string]any{
		"status":            string(summary.Status),
		"knowledge_entries": summary.KnowledgeEntries,
		"execution_time_ms": summary.ExecutionTimeMs,
	}
	if summary.ErrorMessage != "" {
		ev.Payload["error_message"] = summary.ErrorMessage
	}

	if err := b.store.AppendEvent(sessionID, ev); err != nil {
		return fmt.Errorf("append summary event: %w", err)
	}
	if err := b.store.ApplyDelta(sessionID, map[string]any{StateLastResultID: summary.ResultID}); err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	b.logger.Debug("Execution summary pushed", "session_id", sessionID, "result_id", summary.ResultID, "status", string(summary.Status))
	return nil
}
