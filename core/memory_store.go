package core

import "time"

// UpdateStrategy selects how a mid-term memory update is applied.
type UpdateStrategy string

const (
	// UpdateIncremental merges the update into the existing mid-term state.
	UpdateIncremental UpdateStrategy = "incremental"
	// UpdateReplace overwrites the existing mid-term state.
	UpdateReplace UpdateStrategy = "replace"
)

// Valid reports whether s is a known strategy.
func (s UpdateStrategy) Valid() bool {
	return s == UpdateIncremental || s == UpdateReplace
}

// MemoryUpdate is a mid-term memory update derived from one result. The
// provenance fields let memory entries be traced back to the result and the
// context package that produced them.
type MemoryUpdate struct {
	SourceResultID  string         `json:"source_result_id"`
	SourceContextID string         `json:"source_context_id"`
	AgentID         string         `json:"agent_id"`
	TrackingID      string         `json:"tracking_id"`
	Strategy        UpdateStrategy `json:"strategy"`
	Data            map[string]any `json:"data"`
	CreatedAt       time.Time      `json:"created_at"`
}

// MemoryStore holds session scoped mid-term state (Get / Put / Replace) and
// searchable long-term snippets (Store / Search / Delete). Implementations
// must tolerate concurrent writers.
type MemoryStore interface {
	Get(sessionID string) (map[string]any, error)
	Put(sessionID string, delta map[string]any) error
	Replace(sessionID string, state map[string]any) error
	Search(sessionID string, query string, limit int) ([]SearchResult, error)
	Store(sessionID string, content string, metadata map[string]any) (string, error)
	Delete(sessionID string, memoryID string) error
}
