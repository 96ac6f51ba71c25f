package core

import (
	"context"
	"time"
)

// Event types published by the protocol.
const (
	EventResultProcessed  = "result.processed"
	EventExecutionSummary = "execution.summary"
)

// Event is an immutable notification emitted to an EventBus or appended to a
// session history. Payload values must be JSON compatible.
type Event struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	TrackingID       string         `json:"tracking_id,omitempty"`
	ResultID         string         `json:"result_id,omitempty"`
	ContextPackageID string         `json:"context_package_id,omitempty"`
	AgentID          string         `json:"agent_id,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// NewEvent creates an event of the given type stamped with a fresh id.
func NewEvent(eventType string) Event {
	return Event{
		ID:        NewPrefixedID(EventPrefix),
		Type:      eventType,
		Payload:   map[string]any{},
		Timestamp: time.Now().UTC(),
	}
}

// Clone returns a deep copy.
func (e Event) Clone() Event {
	e.Payload = CloneMap(e.Payload)
	return e
}

// EventBus publishes protocol events. Publish failures are never fatal to
// callers of the protocol.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
}

// ExecutionSummary is the condensed outcome pushed to an external channel.
type ExecutionSummary struct {
	TrackingID       string       `json:"tracking_id"`
	ResultID         string       `json:"result_id"`
	ContextPackageID string       `json:"context_package_id"`
	AgentID          string       `json:"agent_id"`
	Status           ResultStatus `json:"status"`
	KnowledgeEntries int          `json:"knowledge_entries"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	ExecutionTimeMs  int64        `json:"execution_time_ms"`
}

// ChannelBridge forwards execution summaries to a user facing channel.
type ChannelBridge interface {
	PushExecutionSummary(ctx context.Context, sessionID string, summary ExecutionSummary) error
}
