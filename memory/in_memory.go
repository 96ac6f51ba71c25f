package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

const memoryPrefix = "mem_"

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
	Created  time.Time
	seq      uint64
}

// InMemoryStore is a process-local MemoryStore.
//
// Concurrency: protected by RWMutex; every read and write copies maps so
// callers never share state with the store.
// Search: case-insensitive substring match in insertion order with a constant
// score of 1.0. Suitable for tests and single process deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	memory  map[string]map[string]any          // sessionID -> key -> value
	storage map[string]map[string]StoredMemory // sessionID -> memoryID -> stored memory
	seq     uint64
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memory:  make(map[string]map[string]any),
		storage: make(map[string]map[string]StoredMemory),
	}
}

// Get returns a deep copy of the session's mid-term state.
func (m *InMemoryStore) Get(sessionID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return core.CloneMap(m.memory[sessionID]), nil
}

// Put merges delta into the session's mid-term state.
func (m *InMemoryStore) Put(sessionID string, delta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.memory[sessionID]; !exists {
		m.memory[sessionID] = make(map[string]any, len(delta))
	}
	for k, v := range core.CloneMap(delta) {
		m.memory[sessionID][k] = v
	}
	return nil
}

// Replace overwrites the session's mid-term state.
func (m *InMemoryStore) Replace(sessionID string, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory[sessionID] = core.CloneMap(state)
	return nil
}

// Search returns stored memories whose content contains query, oldest
// first, up to limit. A non-positive limit means no limit.
func (m *InMemoryStore) Search(sessionID string, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]StoredMemory, 0, len(m.storage[sessionID]))
	q := strings.ToLower(query)
	for _, stored := range m.storage[sessionID] {
		if q == "" || strings.Contains(strings.ToLower(stored.Content), q) {
			matches = append(matches, stored)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]core.SearchResult, len(matches))
	for i, stored := range matches {
		results[i] = core.SearchResult{ID: stored.ID, Content: stored.Content, Score: 1.0, Metadata: core.CloneMap(stored.Metadata)}
	}
	return results, nil
}

// Store appends a long-term memory and returns its generated id.
func (m *InMemoryStore) Store(sessionID string, content string, metadata map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.storage[sessionID]; !exists {
		m.storage[sessionID] = make(map[string]StoredMemory)
	}
	m.seq++
	memoryID := core.NewPrefixedID(memoryPrefix)
	m.storage[sessionID][memoryID] = StoredMemory{
		ID:       memoryID,
		Content:  content,
		Metadata: core.CloneMap(metadata),
		Created:  time.Now().UTC(),
		seq:      m.seq,
	}
	return memoryID, nil
}

// Delete removes a stored memory by id.
func (m *InMemoryStore) Delete(sessionID string, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.storage[sessionID][memoryID]; !exists {
		return fmt.Errorf("memory %q in session %q: %w", memoryID, sessionID, core.ErrNotFound)
	}
	delete(m.storage[sessionID], memoryID)
	return nil
}
