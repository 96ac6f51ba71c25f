package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/audit"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/knowledge"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/schema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ProvenanceKey holds the provenance of the last memory update in the
// mid-term state.
const ProvenanceKey = "_provenance"

// Options configure a Pipeline.
type Options struct {
	// MemoryStore receives mid-term updates. Defaults to an in-memory store.
	MemoryStore core.MemoryStore
	// KnowledgeStore receives derived knowledge entries. Defaults to an
	// in-memory store.
	KnowledgeStore core.KnowledgeStore
	// AuditLog records every processing stage. Defaults to an in-memory log.
	AuditLog core.AuditLog

	// Optional collaborators; nil disables the step.
	EventBus      core.EventBus
	ChannelBridge core.ChannelBridge
	ArtifactStore core.ArtifactStore

	// UpdateStrategy selects merge or overwrite of mid-term state.
	UpdateStrategy core.UpdateStrategy
	// SessionID scopes mid-term memory and channel pushes. When empty the
	// result's context package id is used.
	SessionID string
	// Deduplicate skips results whose id was already processed.
	Deduplicate bool

	Validator *schema.Validator
	Logger    logging.Logger
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// ProcessingResult reports one Process call.
type ProcessingResult struct {
	Success           bool              `json:"success"`
	TrackingID        string            `json:"tracking_id"`
	ResultID          string            `json:"result_id"`
	ContextPackageID  string            `json:"context_package_id"`
	Status            core.ResultStatus `json:"status"`
	MidTermUpdated    bool              `json:"mid_term_updated"`
	LongTermUpdated   bool              `json:"long_term_updated"`
	KnowledgeEntryIDs []string          `json:"knowledge_entry_ids"`
	Errors            []string          `json:"errors"`
	Warnings          []string          `json:"warnings"`
	Duplicate         bool              `json:"duplicate"`
	Duration          time.Duration     `json:"duration"`

	rejected bool
}

// Pipeline applies sub-agent results to the parent's memory and knowledge.
// It is safe for concurrent use.
type Pipeline struct {
	opts    Options
	logger  logging.Logger
	monitor *Monitor

	mu     sync.Mutex
	ledger map[string]string // result id -> tracking id
}

// New creates a Pipeline.
func New(optFns ...func(o *Options)) *Pipeline {
	opts := Options{UpdateStrategy: core.UpdateIncremental}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MemoryStore == nil {
		opts.MemoryStore = memory.NewInMemoryStore()
	}
	if opts.KnowledgeStore == nil {
		opts.KnowledgeStore = knowledge.NewInMemoryStore()
	}
	if opts.AuditLog == nil {
		opts.AuditLog = audit.NewInMemoryLog()
	}
	if !opts.UpdateStrategy.Valid() {
		opts.UpdateStrategy = core.UpdateIncremental
	}
	if opts.Validator == nil {
		opts.Validator = schema.New()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline{
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		monitor: &Monitor{},
		ledger:  make(map[string]string),
	}
}

// KnowledgeStore returns the store entries are written to.
func (p *Pipeline) KnowledgeStore() core.KnowledgeStore { return p.opts.KnowledgeStore }

// MemoryStore returns the store mid-term updates are applied to.
func (p *Pipeline) MemoryStore() core.MemoryStore { return p.opts.MemoryStore }

// Stats returns the processing counters.
func (p *Pipeline) Stats() Snapshot { return p.monitor.Snapshot() }

// GetAuditLog returns the audit trail of resultID in recording order.
func (p *Pipeline) GetAuditLog(resultID string) []core.AuditEntry {
	return p.opts.AuditLog.ByResult(resultID)
}

// run carries the state of one processing attempt.
type run struct {
	p     *Pipeline
	start time.Time
	res   *ProcessingResult
}

// begin opens an attempt. With deduplication on, a result id that is already
// claimed keeps the claiming attempt's tracking id so every audit entry of the
// duplicate correlates with the original.
func (p *Pipeline) begin(resultID, contextID, source string) *run {
	trackingID := ""
	if p.opts.Deduplicate && resultID != "" {
		trackingID = p.claimedBy(resultID)
	}
	if trackingID == "" {
		trackingID = core.NewTrackingID()
	}
	r := &run{
		p:     p,
		start: p.opts.Clock(),
		res: &ProcessingResult{
			TrackingID:        trackingID,
			ResultID:          resultID,
			ContextPackageID:  contextID,
			KnowledgeEntryIDs: []string{},
			Errors:            []string{},
			Warnings:          []string{},
		},
	}
	r.audit(core.StageResultReceived, map[string]any{"source": source})
	return r
}

func (r *run) audit(stage core.AuditStage, details map[string]any) {
	entry := core.AuditEntry{
		TrackingID:       r.res.TrackingID,
		ResultID:         r.res.ResultID,
		ContextPackageID: r.res.ContextPackageID,
		Stage:            stage,
		Details:          details,
		Timestamp:        r.p.opts.Clock(),
	}
	if err := r.p.opts.AuditLog.Record(entry); err != nil {
		r.warn("audit", fmt.Errorf("record %s: %w", stage, err))
	}
	logging.LogPipelineStage(r.p.logger, r.res.TrackingID, r.res.ResultID, string(stage), entry.Timestamp.Sub(r.start), nil)
}

func (r *run) fail(op string, err error) {
	logging.LogPipelineStage(r.p.logger, r.res.TrackingID, r.res.ResultID, op, r.p.opts.Clock().Sub(r.start), err)
	r.res.Errors = append(r.res.Errors, op+": "+err.Error())
}

func (r *run) warn(op string, err error) {
	r.p.logger.Warn("Optional pipeline step failed",
		"tracking_id", r.res.TrackingID,
		"result_id", r.res.ResultID,
		"operation", op,
		"error", err,
	)
	r.res.Warnings = append(r.res.Warnings, op+": "+err.Error())
}

func (r *run) reject(reason string, details map[string]any) *ProcessingResult {
	r.res.rejected = true
	r.res.Errors = append(r.res.Errors, reason)
	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = reason
	r.audit(core.StageProcessingFailed, details)
	r.p.logger.Warn("Result rejected", "tracking_id", r.res.TrackingID, "result_id", r.res.ResultID, "reason", reason)
	return r.finish()
}

func (r *run) finish() *ProcessingResult {
	r.res.Duration = r.p.opts.Clock().Sub(r.start)
	r.p.monitor.record(r.res)
	return r.res
}

// Process runs the pipeline for one result. It never returns nil; a result
// that fails its schema check yields Success=false with the tracking id set.
func (p *Pipeline) Process(ctx context.Context, result *core.ResultPackage) *ProcessingResult {
	if result == nil {
		r := p.begin("", "", "struct")
		return r.reject("result is nil", nil)
	}
	r := p.begin(result.ResultID, result.ContextPackageID, "struct")
	if check := p.opts.Validator.ValidateResultPackage(result); !check.Valid {
		return r.reject("schema validation failed", map[string]any{"fields": check.Fields, "errors": check.Errors})
	}
	return p.process(ctx, r, result.Clone())
}

// ProcessJSON runs the pipeline for a serialized result. Undecodable input
// still gets a tracking id and a processing_failed audit entry, keyed by the
// result id when one can be read from the bytes.
func (p *Pipeline) ProcessJSON(ctx context.Context, data []byte) *ProcessingResult {
	resultID, contextID := "", ""
	if gjson.ValidBytes(data) {
		resultID = gjson.GetBytes(data, "result_id").String()
		contextID = gjson.GetBytes(data, "context_package_id").String()
	}
	r := p.begin(resultID, contextID, "json")

	check, err := p.opts.Validator.ValidateResultJSON(data)
	if err != nil {
		return r.reject("parse failed", map[string]any{"error": err.Error()})
	}
	if !check.Valid {
		return r.reject("schema validation failed", map[string]any{"fields": check.Fields, "errors": check.Errors})
	}
	result, err := core.ResultPackageFromJSON(data)
	if err != nil {
		return r.reject("decode failed", map[string]any{"error": err.Error()})
	}
	if check := p.opts.Validator.ValidateResultPackage(result); !check.Valid {
		return r.reject("schema validation failed", map[string]any{"fields": check.Fields, "errors": check.Errors})
	}
	return p.process(ctx, r, result)
}

func (p *Pipeline) process(ctx context.Context, r *run, result *core.ResultPackage) *ProcessingResult {
	res := r.res
	res.Status = result.Status
	r.audit(core.StageResultUnpacked, map[string]any{"status": string(result.Status), "agent_id": result.AgentID})

	if p.opts.Deduplicate {
		if prior, dup := p.claim(result.ResultID, res.TrackingID); dup {
			// A concurrent attempt may have claimed the id after begin.
			res.TrackingID = prior
			res.Duplicate = true
			res.Success = true
			r.audit(core.StageDuplicateSkipped, map[string]any{"original_tracking_id": prior})
			p.logger.Info("Duplicate result skipped", "tracking_id", res.TrackingID, "result_id", result.ResultID)
			return r.finish()
		}
	}

	switch result.Status {
	case core.StatusCompleted:
		p.updateMemory(ctx, r, result)
		p.writeKnowledge(ctx, r, result)
	case core.StatusFailed:
		r.audit(core.StageResultFailed, map[string]any{
			"error_message": result.ErrorMessage,
			"error_code":    result.ErrorCode,
			"agent_id":      result.AgentID,
		})
		p.logger.Info("Sub-agent reported failure", "tracking_id", res.TrackingID, "result_id", result.ResultID, "error_message", result.ErrorMessage, "error_code", result.ErrorCode)
	}

	p.archive(r, result)
	p.publish(ctx, r, result)
	p.push(ctx, r, result)

	res.Success = len(res.Errors) == 0
	if !res.Success && p.opts.Deduplicate {
		p.release(result.ResultID)
	}
	r.audit(core.StageProcessingCompleted, map[string]any{
		"success":             res.Success,
		"knowledge_entry_ids": append([]string(nil), res.KnowledgeEntryIDs...),
		"errors":              len(res.Errors),
		"warnings":            len(res.Warnings),
	})
	out := r.finish()
	p.logger.Info("Result processed",
		"tracking_id", out.TrackingID,
		"result_id", out.ResultID,
		"status", string(out.Status),
		"knowledge_entries", len(out.KnowledgeEntryIDs),
		"success", out.Success,
		"duration", out.Duration,
	)
	return out
}

func (p *Pipeline) sessionFor(result *core.ResultPackage) string {
	if p.opts.SessionID != "" {
		return p.opts.SessionID
	}
	return result.ContextPackageID
}

func (p *Pipeline) updateMemory(ctx context.Context, r *run, result *core.ResultPackage) {
	if err := ctx.Err(); err != nil {
		r.fail("memory update", err)
		return
	}
	update := core.MemoryUpdate{
		SourceResultID:  result.ResultID,
		SourceContextID: result.ContextPackageID,
		AgentID:         result.AgentID,
		TrackingID:      r.res.TrackingID,
		Strategy:        p.opts.UpdateStrategy,
		Data:            core.CloneMap(result.OutputData),
		CreatedAt:       p.opts.Clock(),
	}
	state := memoryState(update)
	session := p.sessionFor(result)

	var err error
	if update.Strategy == core.UpdateReplace {
		err = p.opts.MemoryStore.Replace(session, state)
	} else {
		err = p.opts.MemoryStore.Put(session, state)
	}
	if err != nil {
		r.fail("memory update", err)
		return
	}
	r.res.MidTermUpdated = true
	r.audit(core.StageMemoryUpdated, map[string]any{
		"session_id": session,
		"strategy":   string(update.Strategy),
		"keys":       len(update.Data),
	})
}

// memoryState flattens an update into mid-term state: the output data plus
// its provenance under ProvenanceKey.
func memoryState(u core.MemoryUpdate) map[string]any {
	state := core.CloneMap(u.Data)
	state[ProvenanceKey] = map[string]any{
		core.MetaSourceResultID:  u.SourceResultID,
		core.MetaSourceContextID: u.SourceContextID,
		core.MetaAgentID:         u.AgentID,
		core.MetaTrackingID:      u.TrackingID,
		"strategy":               string(u.Strategy),
		"updated_at":             u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	return state
}

func (p *Pipeline) writeKnowledge(ctx context.Context, r *run, result *core.ResultPackage) {
	candidates := deriveCandidates(result.KnowledgeUpdates)
	if len(candidates) == 0 {
		return
	}
	now := p.opts.Clock()
	for _, c := range candidates {
		entry := c.entry(result, r.res.TrackingID)
		entry.CreatedAt = now
		id, err := p.opts.KnowledgeStore.Create(ctx, entry)
		if err != nil {
			r.fail("knowledge write", fmt.Errorf("%s entry %q: %w", c.category, entry.Title, err))
			continue
		}
		r.res.KnowledgeEntryIDs = append(r.res.KnowledgeEntryIDs, id)
	}
	if len(r.res.KnowledgeEntryIDs) == 0 {
		return
	}
	r.res.LongTermUpdated = true
	r.audit(core.StageKnowledgeWritten, map[string]any{
		"entry_ids": append([]string(nil), r.res.KnowledgeEntryIDs...),
		"count":     len(r.res.KnowledgeEntryIDs),
	})
}

func (p *Pipeline) archive(r *run, result *core.ResultPackage) {
	if p.opts.ArtifactStore == nil {
		return
	}
	data, err := result.ToJSON()
	if err == nil {
		data, err = sjson.SetBytes(data, "tracking_id", r.res.TrackingID)
	}
	if err != nil {
		r.warn("archive", err)
		return
	}
	artifactID := result.ResultID + ".json"
	if err := p.opts.ArtifactStore.Save(result.ContextPackageID, artifactID, data); err != nil {
		r.warn("archive", err)
		return
	}
	r.audit(core.StageResultArchived, map[string]any{"artifact_id": artifactID, "bytes": len(data)})
}

func (p *Pipeline) publish(ctx context.Context, r *run, result *core.ResultPackage) {
	if p.opts.EventBus == nil {
		return
	}
	ev := core.NewEvent(core.EventResultProcessed)
	ev.TrackingID = r.res.TrackingID
	ev.ResultID = result.ResultID
	ev.ContextPackageID = result.ContextPackageID
	ev.AgentID = result.AgentID
	ev.Payload = map[string]any{
		"status":              string(result.Status),
		"knowledge_entry_ids": append([]string(nil), r.res.KnowledgeEntryIDs...),
		"mid_term_updated":    r.res.MidTermUpdated,
		"errors":              len(r.res.Errors),
	}
	if err := p.opts.EventBus.Publish(ctx, ev); err != nil {
		r.warn("event publish", err)
	}
}

func (p *Pipeline) push(ctx context.Context, r *run, result *core.ResultPackage) {
	if p.opts.ChannelBridge == nil {
		return
	}
	summary := core.ExecutionSummary{
		TrackingID:       r.res.TrackingID,
		ResultID:         result.ResultID,
		ContextPackageID: result.ContextPackageID,
		AgentID:          result.AgentID,
		Status:           result.Status,
		KnowledgeEntries: len(r.res.KnowledgeEntryIDs),
		ErrorMessage:     result.ErrorMessage,
		ExecutionTimeMs:  result.ExecutionTimeMs,
	}
	if err := p.opts.ChannelBridge.PushExecutionSummary(ctx, p.sessionFor(result), summary); err != nil {
		r.warn("channel push", err)
	}
}

// claim reserves resultID for trackingID. It returns the earlier tracking id
// and true when the result was already claimed.
func (p *Pipeline) claim(resultID, trackingID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prior, ok := p.ledger[resultID]; ok {
		return prior, true
	}
	p.ledger[resultID] = trackingID
	return "", false
}

// claimedBy returns the tracking id holding resultID, or "".
func (p *Pipeline) claimedBy(resultID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger[resultID]
}

// release forgets resultID so a failed attempt can be retried.
func (p *Pipeline) release(resultID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ledger, resultID)
}
