package core

import (
	"strings"
	"testing"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventResultProcessed)
	if e.Type != EventResultProcessed || e.Timestamp.IsZero() || e.Payload == nil {
		t.Fatalf("NewEvent did not initialize fields correctly: %+v", e)
	}
	if !strings.HasPrefix(e.ID, EventPrefix) {
		t.Errorf("expected id prefix %q, got %q", EventPrefix, e.ID)
	}
	if other := NewEvent(EventResultProcessed); other.ID == e.ID {
		t.Error("event ids should be unique")
	}
}

func TestEvent_Clone(t *testing.T) {
	e := NewEvent(EventExecutionSummary)
	e.Payload["summary"] = map[string]any{"status": "completed"}

	clone := e.Clone()
	clone.Payload["summary"].(map[string]any)["status"] = "failed"
	clone.Payload["extra"] = true

	if e.Payload["summary"].(map[string]any)["status"] != "completed" {
		t.Error("nested payload should be copied")
	}
	if _, ok := e.Payload["extra"]; ok {
		t.Error("original should not see clone's new key")
	}
}
