package core

import "time"

// AuditStage names a step recorded in a result's audit trail.
type AuditStage string

// Audit stages emitted by the result processing pipeline.
const (
	StageResultReceived      AuditStage = "result_received"
	StageResultUnpacked      AuditStage = "result_unpacked"
	StageMemoryUpdated       AuditStage = "memory_updated"
	StageKnowledgeWritten    AuditStage = "knowledge_written"
	StageResultFailed        AuditStage = "result_failed"
	StageResultArchived      AuditStage = "result_archived"
	StageProcessingFailed    AuditStage = "processing_failed"
	StageDuplicateSkipped    AuditStage = "duplicate_skipped"
	StageProcessingCompleted AuditStage = "processing_completed"
)

// AuditEntry is one immutable audit trail record. All entries written while
// processing one result share its TrackingID.
type AuditEntry struct {
	TrackingID       string         `json:"tracking_id"`
	ResultID         string         `json:"result_id"`
	ContextPackageID string         `json:"context_package_id,omitempty"`
	Stage            AuditStage     `json:"stage"`
	Details          map[string]any `json:"details,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// AuditLog stores audit entries. Implementations must be safe for
// concurrent use and return entries in recording order.
type AuditLog interface {
	Record(entry AuditEntry) error
	ByResult(resultID string) []AuditEntry
	ByTracking(trackingID string) []AuditEntry
}
