package core

import (
	"encoding/json"
	"time"
)

// ResultStatus is the closed set of sub-agent outcomes.
type ResultStatus string

const (
	// StatusCompleted marks a successful execution carrying output data.
	StatusCompleted ResultStatus = "completed"
	// StatusFailed marks a failed execution carrying an error message.
	StatusFailed ResultStatus = "failed"
)

// Valid reports whether s is one of the defined statuses.
func (s ResultStatus) Valid() bool {
	return s == StatusCompleted || s == StatusFailed
}

// LogLevel is the severity of an execution log line.
type LogLevel string

// Execution log levels.
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warning"
	LogError LogLevel = "error"
)

// ExecutionLog is a single timestamped line recorded by a sub-agent.
type ExecutionLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// ResultPackage is the envelope a sub-agent returns to its parent. It always
// references the ContextPackage that produced it.
type ResultPackage struct {
	ResultID         string         `json:"result_id"`
	ContextPackageID string         `json:"context_package_id"`
	AgentID          string         `json:"agent_id"`
	Status           ResultStatus   `json:"status"`
	OutputData       map[string]any `json:"output_data"`
	ExecutionLogs    []ExecutionLog `json:"execution_logs"`
	KnowledgeUpdates map[string]any `json:"knowledge_updates"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	ExecutionTimeMs  int64          `json:"execution_time_ms"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      time.Time      `json:"completed_at"`
}

// IsSuccess reports whether the sub-agent completed.
func (r *ResultPackage) IsSuccess() bool { return r.Status == StatusCompleted }

// Clone returns a deep copy.
func (r *ResultPackage) Clone() *ResultPackage {
	cp := *r
	cp.OutputData = CloneMap(r.OutputData)
	cp.KnowledgeUpdates = CloneMap(r.KnowledgeUpdates)
	cp.ExecutionLogs = make([]ExecutionLog, len(r.ExecutionLogs))
	copy(cp.ExecutionLogs, r.ExecutionLogs)
	return &cp
}

// ToJSON serializes the result.
func (r *ResultPackage) ToJSON() ([]byte, error) {
	return json.Marshal(r.Clone())
}

// ToMap returns the result in its loosely typed wire shape.
func (r *ResultPackage) ToMap() map[string]any {
	logs := make([]any, len(r.ExecutionLogs))
	for i, l := range r.ExecutionLogs {
		logs[i] = map[string]any{
			"timestamp": l.Timestamp.Format(time.RFC3339Nano),
			"level":     string(l.Level),
			"message":   l.Message,
		}
	}
	m := map[string]any{
		"result_id":          r.ResultID,
		"context_package_id": r.ContextPackageID,
		"agent_id":           r.AgentID,
		"status":             string(r.Status),
		"output_data":        CloneMap(r.OutputData),
		"execution_logs":     logs,
		"knowledge_updates":  CloneMap(r.KnowledgeUpdates),
		"execution_time_ms":  r.ExecutionTimeMs,
		"started_at":         r.StartedAt.Format(time.RFC3339Nano),
		"completed_at":       r.CompletedAt.Format(time.RFC3339Nano),
	}
	if r.ErrorMessage != "" {
		m["error_message"] = r.ErrorMessage
	}
	if r.ErrorCode != "" {
		m["error_code"] = r.ErrorCode
	}
	return m
}

// ResultPackageFromJSON decodes a result. Error semantics match
// ContextPackageFromJSON.
func ResultPackageFromJSON(data []byte) (*ResultPackage, error) {
	var r ResultPackage
	if err := decodeStrict(data, "result package", &r); err != nil {
		return nil, err
	}
	return r.Clone(), nil
}
