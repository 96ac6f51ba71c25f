// Package audit contains core.AuditLog implementations. An audit log is an
// append-only trail of result processing stages; every entry written while
// processing one result carries the same tracking id.
package audit

import (
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// InMemoryLog is an append-only, process-local AuditLog.
type InMemoryLog struct {
	mu         sync.RWMutex
	entries    []core.AuditEntry
	byResult   map[string][]int
	byTracking map[string][]int
}

// NewInMemoryLog creates an empty audit log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		byResult:   make(map[string][]int),
		byTracking: make(map[string][]int),
	}
}

// Record appends entry, stamping it with the current time when unset.
func (l *InMemoryLog) Record(entry core.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Details = core.CloneMap(entry.Details)

	l.mu.Lock()
	defer l.mu.Unlock()
	idx := len(l.entries)
	l.entries = append(l.entries, entry)
	if entry.ResultID != "" {
		l.byResult[entry.ResultID] = append(l.byResult[entry.ResultID], idx)
	}
	if entry.TrackingID != "" {
		l.byTracking[entry.TrackingID] = append(l.byTracking[entry.TrackingID], idx)
	}
	return nil
}

// ByResult returns the entries recorded for resultID in recording order.
func (l *InMemoryLog) ByResult(resultID string) []core.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(l.byResult[resultID])
}

// ByTracking returns the entries recorded under trackingID in recording order.
func (l *InMemoryLog) ByTracking(trackingID string) []core.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(l.byTracking[trackingID])
}

// All returns every entry in recording order.
func (l *InMemoryLog) All() []core.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.AuditEntry, len(l.entries))
	for i, e := range l.entries {
		e.Details = core.CloneMap(e.Details)
		out[i] = e
	}
	return out
}

func (l *InMemoryLog) collect(idx []int) []core.AuditEntry {
	out := make([]core.AuditEntry, len(idx))
	for i, j := range idx {
		e := l.entries[j]
		e.Details = core.CloneMap(e.Details)
		out[i] = e
	}
	return out
}
