package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// Monitor counts pipeline outcomes. All methods are safe for concurrent use.
type Monitor struct {
	processed          atomic.Int64
	completed          atomic.Int64
	failed             atomic.Int64
	rejected           atomic.Int64
	duplicates         atomic.Int64
	knowledgeEntries   atomic.Int64
	collaboratorErrors atomic.Int64
	totalDurationNs    atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed          int64         `json:"processed"`
	Completed          int64         `json:"completed"`
	Failed             int64         `json:"failed"`
	Rejected           int64         `json:"rejected"`
	Duplicates         int64         `json:"duplicates"`
	KnowledgeEntries   int64         `json:"knowledge_entries"`
	// CollaboratorErrors counts store and integration failures of accepted
	// results. Rejections are counted in Rejected only.
	CollaboratorErrors int64         `json:"collaborator_errors"`
	TotalDuration      time.Duration `json:"total_duration"`
}

// AverageDuration returns the mean processing time.
func (s Snapshot) AverageDuration() time.Duration {
	if s.Processed == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Processed)
}

// SuccessRate returns the share of processed results that completed.
func (s Snapshot) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Processed)
}

func (m *Monitor) record(res *ProcessingResult) {
	m.processed.Add(1)
	m.totalDurationNs.Add(res.Duration.Nanoseconds())
	m.knowledgeEntries.Add(int64(len(res.KnowledgeEntryIDs)))
	// A rejection reason is not a collaborator failure.
	if !res.rejected {
		m.collaboratorErrors.Add(int64(len(res.Errors)))
	}
	switch {
	case res.Duplicate:
		m.duplicates.Add(1)
	case res.rejected:
		m.rejected.Add(1)
	case res.Status == core.StatusCompleted:
		m.completed.Add(1)
	case res.Status == core.StatusFailed:
		m.failed.Add(1)
	}
}

// Snapshot returns the current counters.
func (m *Monitor) Snapshot() Snapshot {
	return Snapshot{
		Processed:          m.processed.Load(),
		Completed:          m.completed.Load(),
		Failed:             m.failed.Load(),
		Rejected:           m.rejected.Load(),
		Duplicates:         m.duplicates.Load(),
		KnowledgeEntries:   m.knowledgeEntries.Load(),
		CollaboratorErrors: m.collaboratorErrors.Load(),
		TotalDuration:      time.Duration(m.totalDurationNs.Load()),
	}
}
