package bridge

import (
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/schema"
	"github.com/hupe1980/agentrelay/unpacker"
)

// Options configure a Bridge.
type Options struct {
	// Unpacker validates packages and resolves their defaults.
	Unpacker *unpacker.Unpacker
	// Validator checks results built by CreateResultPackage.
	Validator *schema.Validator
	// PromptTemplate overrides the built-in system prompt template. It is
	// executed with the fields of PromptData.
	PromptTemplate string
	Logger         logging.Logger
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Bridge connects a context package to a sub-agent and packages the
// sub-agent's outcome. It holds no per-execution state and is safe for
// concurrent use.
type Bridge struct {
	opts   Options
	logger logging.Logger
}

// New creates a Bridge.
func New(optFns ...func(o *Options)) *Bridge {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Validator == nil {
		opts.Validator = schema.New()
	}
	logger := logging.OrNoOp(opts.Logger)
	if opts.Unpacker == nil {
		opts.Unpacker = unpacker.New(func(o *unpacker.Options) {
			o.Validator = opts.Validator
			o.Logger = logger
			o.Clock = opts.Clock
		})
	}
	return &Bridge{opts: opts, logger: logger}
}

// InjectedConfig is the flat configuration handed to a sub-agent.
type InjectedConfig struct {
	ContextPackageID string   `json:"context_package_id"`
	TaskDescription  string   `json:"task_description"`
	Constraints      []string `json:"constraints"`
	Priority         int      `json:"priority"`
	ParentAgentID    string   `json:"parent_agent_id"`
	TargetAgentID    string   `json:"target_agent_id"`
	PromptVersion    string   `json:"prompt_version"`
	SystemPrompt     string   `json:"system_prompt"`
}

// ToMap returns the config as flat key/value pairs.
func (c InjectedConfig) ToMap() map[string]any {
	return map[string]any{
		"context_package_id": c.ContextPackageID,
		"task_description":   c.TaskDescription,
		"constraints":        core.CloneStrings(c.Constraints),
		"priority":           c.Priority,
		"parent_agent_id":    c.ParentAgentID,
		"target_agent_id":    c.TargetAgentID,
		"prompt_version":     c.PromptVersion,
		"system_prompt":      c.SystemPrompt,
	}
}

// InjectContext prepares pkg for the sub-agent identified by targetAgentID.
// An empty task description or target yields a *core.InjectionError naming
// the field; a package that breaks its schema yields a *core.ValidationError.
func (b *Bridge) InjectContext(pkg *core.ContextPackage, targetAgentID string) (InjectedConfig, error) {
	resolved, err := b.resolve(pkg, targetAgentID)
	if err != nil {
		return InjectedConfig{}, err
	}
	return b.inject(resolved, targetAgentID), nil
}

func (b *Bridge) inject(resolved *core.ContextPackage, targetAgentID string) InjectedConfig {
	if resolved.TargetAgentID != "" && resolved.TargetAgentID != targetAgentID {
		b.logger.Warn("Context package addressed to a different agent",
			"context_package_id", resolved.PackageID,
			"package_target", resolved.TargetAgentID,
			"target_agent_id", targetAgentID,
		)
	}

	cfg := InjectedConfig{
		ContextPackageID: resolved.PackageID,
		TaskDescription:  resolved.TaskDescription,
		Constraints:      core.CloneStrings(resolved.Constraints),
		Priority:         resolved.Priority,
		ParentAgentID:    resolved.ParentAgentID,
		TargetAgentID:    targetAgentID,
		PromptVersion:    resolved.PromptVersion,
		SystemPrompt:     b.BuildSystemPrompt(resolved),
	}
	b.logger.Info("Context injected",
		"context_package_id", cfg.ContextPackageID,
		"target_agent_id", targetAgentID,
		"priority", cfg.Priority,
	)
	return cfg
}

func (b *Bridge) resolve(pkg *core.ContextPackage, targetAgentID string) (*core.ContextPackage, error) {
	if pkg == nil {
		return nil, &core.InjectionError{Field: "package", Reason: "must not be nil"}
	}
	if strings.TrimSpace(pkg.TaskDescription) == "" {
		return nil, &core.InjectionError{Field: "task_description", Reason: "must not be empty"}
	}
	if strings.TrimSpace(targetAgentID) == "" {
		return nil, &core.InjectionError{Field: "target_agent_id", Reason: "must not be empty"}
	}
	unpacked, err := b.opts.Unpacker.Unpack(pkg)
	if err != nil {
		return nil, err
	}
	return unpacked.Package(), nil
}

// PromptData is the input of the system prompt template.
type PromptData struct {
	ContextPackageID string
	Task             string
	Constraints      []string
	Knowledge        []KnowledgeLine
	ShortTerm        []string
	LongTermRefs     []string
	Priority         int
	PromptVersion    string
}

// KnowledgeLine is one relevant-knowledge entry rendered as text.
type KnowledgeLine struct {
	Key   string
	Value string
}

func newPromptData(pkg *core.ContextPackage) PromptData {
	keys := pkg.RelevantKnowledge.Keys()
	knowledge := make([]KnowledgeLine, 0, len(keys))
	for _, k := range keys {
		knowledge = append(knowledge, KnowledgeLine{Key: k, Value: pkg.RelevantKnowledge[k].Text()})
	}
	version := pkg.PromptVersion
	if version == "" {
		version = core.DefaultPromptVersion
	}
	return PromptData{
		ContextPackageID: pkg.PackageID,
		Task:             pkg.TaskDescription,
		Constraints:      core.CloneStrings(pkg.Constraints),
		Knowledge:        knowledge,
		ShortTerm:        core.CloneStrings(pkg.ShortTermContext),
		LongTermRefs:     core.CloneStrings(pkg.LongTermReferences),
		Priority:         pkg.Priority,
		PromptVersion:    version,
	}
}

// BuildSystemPrompt renders the sub-agent preamble. The task description,
// every constraint and every relevant-knowledge entry appear verbatim;
// knowledge is ordered by key.
func (b *Bridge) BuildSystemPrompt(pkg *core.ContextPackage) string {
	if pkg == nil {
		return ""
	}
	data := newPromptData(pkg)
	if b.opts.PromptTemplate != "" {
		out, err := renderTemplate(b.opts.PromptTemplate, data)
		if err == nil {
			return out
		}
		b.logger.Error("Custom prompt template failed, using default", "context_package_id", pkg.PackageID, "error", err)
	}
	out, err := renderTemplate(defaultPromptTemplate, data)
	if err != nil {
		// The built-in template only ranges over plain strings.
		b.logger.Error("Default prompt template failed", "context_package_id", pkg.PackageID, "error", err)
		return pkg.TaskDescription
	}
	return out
}

// WorkingMemory is the sub-agent's view of a package's memory tiers.
type WorkingMemory struct {
	unpacker.MemoryProjection
	ContextID string `json:"context_id"`
}

// LoadToWorkingMemory projects pkg into the sub-agent's working memory.
func (b *Bridge) LoadToWorkingMemory(pkg *core.ContextPackage) WorkingMemory {
	wm := WorkingMemory{MemoryProjection: b.opts.Unpacker.ExtractForMemory(pkg)}
	if pkg != nil {
		wm.ContextID = pkg.PackageID
	}
	return wm
}

// ResultOptions carry the optional parts of a result.
type ResultOptions struct {
	// StartedAt is the tracked execution start. When zero the call time is
	// used for both timestamps.
	StartedAt        time.Time
	ExecutionLogs    []core.ExecutionLog
	KnowledgeUpdates map[string]any
	ErrorMessage     string
	ErrorCode        string
}

// CreateResultPackage builds the envelope returned to the parent. Failed
// results require an error message.
func (b *Bridge) CreateResultPackage(
	contextPackageID, agentID string,
	outputData map[string]any,
	status core.ResultStatus,
	optFns ...func(o *ResultOptions),
) (*core.ResultPackage, error) {
	opts := ResultOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if !status.Valid() {
		return nil, core.NewValidationError("status", "must be completed or failed, got "+string(status))
	}
	if status == core.StatusFailed && strings.TrimSpace(opts.ErrorMessage) == "" {
		return nil, core.NewValidationError("error_message", "is required when status is failed")
	}

	completed := b.opts.Clock()
	started := opts.StartedAt
	if started.IsZero() {
		started = completed
	}
	elapsed := completed.Sub(started).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	logs := make([]core.ExecutionLog, len(opts.ExecutionLogs))
	copy(logs, opts.ExecutionLogs)

	res := &core.ResultPackage{
		ResultID:         core.NewResultID(),
		ContextPackageID: contextPackageID,
		AgentID:          agentID,
		Status:           status,
		OutputData:       core.CloneMap(outputData),
		ExecutionLogs:    logs,
		KnowledgeUpdates: core.CloneMap(opts.KnowledgeUpdates),
		ErrorMessage:     opts.ErrorMessage,
		ErrorCode:        opts.ErrorCode,
		ExecutionTimeMs:  elapsed,
		StartedAt:        started,
		CompletedAt:      completed,
	}
	if check := b.opts.Validator.ValidateResultPackage(res); !check.Valid {
		return nil, check.Err()
	}

	b.logger.Debug("Result package created",
		"result_id", res.ResultID,
		"context_package_id", contextPackageID,
		"agent_id", agentID,
		"status", string(status),
		"execution_time_ms", elapsed,
	)
	return res, nil
}
