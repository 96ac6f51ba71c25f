package core

import (
	"context"
	"time"
)

// Provenance metadata keys attached to derived knowledge entries.
const (
	MetaSourceResultID  = "source_result_id"
	MetaSourceContextID = "source_context_id"
	MetaAgentID         = "agent_id"
	MetaTrackingID      = "tracking_id"
)

// KnowledgeEntry is a durable fact, insight or conclusion.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Metadata  Values    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy.
func (e KnowledgeEntry) Clone() KnowledgeEntry {
	e.Tags = CloneStrings(e.Tags)
	e.Metadata = e.Metadata.Clone()
	return e
}

// KnowledgeStore persists knowledge entries. Create assigns an id when the
// entry has none. Get returns ErrNotFound for unknown ids. Search matches the
// keyword against title, content and tags; an empty keyword lists everything.
type KnowledgeStore interface {
	Create(ctx context.Context, entry KnowledgeEntry) (string, error)
	Get(ctx context.Context, id string) (*KnowledgeEntry, error)
	Search(ctx context.Context, keyword string) ([]KnowledgeEntry, error)
}
