package testutil

import (
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// ResultBuilder provides a fluent helper for constructing result packages in
// tests. Example:
//
//	res := NewResultBuilder().Agent("analyst").Output("answer", 42).Fact("x is 1").Build()
//
// Defaults: fresh result id, context package "ctx_test", agent "agent",
// status completed, started one second before completion.
type ResultBuilder struct {
	res core.ResultPackage
}

// NewResultBuilder creates a builder with defaults applied.
func NewResultBuilder() *ResultBuilder {
	completed := time.Now().UTC()
	return &ResultBuilder{res: core.ResultPackage{
		ResultID:         core.NewResultID(),
		ContextPackageID: "ctx_test",
		AgentID:          "agent",
		Status:           core.StatusCompleted,
		OutputData:       map[string]any{},
		ExecutionLogs:    []core.ExecutionLog{},
		KnowledgeUpdates: map[string]any{},
		ExecutionTimeMs:  1000,
		StartedAt:        completed.Add(-time.Second),
		CompletedAt:      completed,
	}}
}

// ID overrides the generated result id (chainable).
func (b *ResultBuilder) ID(id string) *ResultBuilder { b.res.ResultID = id; return b }

// Context sets the originating context package id (chainable).
func (b *ResultBuilder) Context(id string) *ResultBuilder { b.res.ContextPackageID = id; return b }

// Agent sets the producing agent id (chainable).
func (b *ResultBuilder) Agent(id string) *ResultBuilder { b.res.AgentID = id; return b }

// Output sets one output_data key (chainable).
func (b *ResultBuilder) Output(key string, value any) *ResultBuilder {
	b.res.OutputData[key] = value
	return b
}

// Fact appends an item to knowledge_updates["facts"] (chainable).
func (b *ResultBuilder) Fact(text string) *ResultBuilder { return b.appendUpdate("facts", text) }

// Insight appends an item to knowledge_updates["insights"] (chainable).
func (b *ResultBuilder) Insight(text string) *ResultBuilder { return b.appendUpdate("insights", text) }

// Conclusion appends an item to knowledge_updates["conclusions"] (chainable).
func (b *ResultBuilder) Conclusion(text string) *ResultBuilder {
	return b.appendUpdate("conclusions", text)
}

// Update sets an arbitrary knowledge_updates key (chainable).
func (b *ResultBuilder) Update(key string, value any) *ResultBuilder {
	b.res.KnowledgeUpdates[key] = value
	return b
}

// Log appends an execution log line (chainable).
func (b *ResultBuilder) Log(level core.LogLevel, msg string) *ResultBuilder {
	b.res.ExecutionLogs = append(b.res.ExecutionLogs, core.ExecutionLog{Timestamp: b.res.StartedAt, Level: level, Message: msg})
	return b
}

// Failed marks the result failed with message and code (chainable).
func (b *ResultBuilder) Failed(message, code string) *ResultBuilder {
	b.res.Status = core.StatusFailed
	b.res.ErrorMessage = message
	b.res.ErrorCode = code
	return b
}

// Status sets the raw status, valid or not (chainable).
func (b *ResultBuilder) Status(s core.ResultStatus) *ResultBuilder { b.res.Status = s; return b }

func (b *ResultBuilder) appendUpdate(key, text string) *ResultBuilder {
	items, _ := b.res.KnowledgeUpdates[key].([]any)
	b.res.KnowledgeUpdates[key] = append(items, text)
	return b
}

// Build returns a copy of the configured result.
func (b *ResultBuilder) Build() *core.ResultPackage { return b.res.Clone() }
