package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// InMemoryStore is a process-local KnowledgeStore. Entries are kept in
// insertion order and copied on the way in and out.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]core.KnowledgeEntry
	order   []string
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]core.KnowledgeEntry)}
}

// Create stores entry, assigning an id and creation time when missing.
func (s *InMemoryStore) Create(ctx context.Context, entry core.KnowledgeEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entry = entry.Clone()
	if entry.ID == "" {
		entry.ID = core.NewPrefixedID(core.EntryPrefix)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.ID]; exists {
		return "", fmt.Errorf("knowledge entry %q: %w", entry.ID, core.ErrDuplicateID)
	}
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	return entry.ID, nil
}

// Get returns the entry with id or core.ErrNotFound.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*core.KnowledgeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("knowledge entry %q: %w", id, core.ErrNotFound)
	}
	cp := entry.Clone()
	return &cp, nil
}

// Search returns entries whose title, content or tags contain keyword
// (case-insensitive), oldest first. An empty keyword lists every entry.
func (s *InMemoryStore) Search(ctx context.Context, keyword string) ([]core.KnowledgeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kw := strings.ToLower(strings.TrimSpace(keyword))

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.KnowledgeEntry, 0)
	for _, id := range s.order {
		entry := s.entries[id]
		if kw == "" || matches(entry, kw) {
			out = append(out, entry.Clone())
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func matches(e core.KnowledgeEntry, kw string) bool {
	if strings.Contains(strings.ToLower(e.Title), kw) || strings.Contains(strings.ToLower(e.Content), kw) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}
