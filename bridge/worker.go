package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/tidwall/gjson"
)

// Task is what a Worker receives: the injected package in sub-agent form.
type Task struct {
	ContextPackageID string
	AgentID          string
	Description      string
	SystemPrompt     string
	InputData        map[string]any
	Memory           WorkingMemory
	// Log appends a line to the execution log.
	Log func(level core.LogLevel, msg string)
}

// Prompt returns the user turn for the task: the description, followed by
// the input data as JSON when there is any.
func (t Task) Prompt() string {
	if len(t.InputData) == 0 {
		return t.Description
	}
	data, err := json.Marshal(t.InputData)
	if err != nil {
		return t.Description
	}
	return t.Description + "\n\nInput data:\n" + string(data)
}

func (t Task) log(level core.LogLevel, msg string) {
	if t.Log != nil {
		t.Log(level, msg)
	}
}

// Outcome is a worker's successful output.
type Outcome struct {
	Output           map[string]any
	KnowledgeUpdates map[string]any
}

// Worker performs the actual sub-agent work.
type Worker interface {
	Execute(ctx context.Context, task Task) (Outcome, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, task Task) (Outcome, error)

// Execute implements Worker.
func (f WorkerFunc) Execute(ctx context.Context, task Task) (Outcome, error) { return f(ctx, task) }

// ModelWorkerOptions configure a ModelWorker.
type ModelWorkerOptions struct {
	// Stream requests incremental generation from the provider.
	Stream bool
	Logger logging.Logger
}

// ModelWorker runs a task through a language model. A reply that is a JSON
// object is read as structured output: its "output" object (or the whole
// object when absent) becomes the output data and its "knowledge_updates"
// object the knowledge updates. Any other reply is returned as
// {"text": reply}.
type ModelWorker struct {
	llm    model.Model
	opts   ModelWorkerOptions
	logger logging.Logger
}

// NewModelWorker creates a ModelWorker.
func NewModelWorker(llm model.Model, optFns ...func(o *ModelWorkerOptions)) *ModelWorker {
	opts := ModelWorkerOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelWorker{llm: llm, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Execute implements Worker.
func (w *ModelWorker) Execute(ctx context.Context, task Task) (Outcome, error) {
	info := w.llm.Info()
	req := model.Request{
		Instructions: task.SystemPrompt,
		Messages:     []model.Message{{Role: model.RoleUser, Text: task.Prompt()}},
		Stream:       w.opts.Stream,
	}

	start := time.Now()
	resp, err := model.Collect(ctx, w.llm, req)
	dur := time.Since(start)
	if err != nil {
		logging.LogModelCall(w.logger, info.Name, info.Provider, 0, dur, err)
		task.log(core.LogError, fmt.Sprintf("model %s failed: %v", info.Name, err))
		return Outcome{}, fmt.Errorf("model %s: %w", info.Name, err)
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogModelCall(w.logger, info.Name, info.Provider, tokens, dur, nil)
	task.log(core.LogInfo, fmt.Sprintf("model %s responded (%s, %d tokens)", info.Name, resp.FinishReason, tokens))

	return parseReply(resp.Text), nil
}

// parseReply extracts structured output from a model reply. Markdown code
// fences around a JSON object are tolerated.
func parseReply(text string) Outcome {
	body := stripFence(strings.TrimSpace(text))
	if !gjson.Valid(body) {
		return Outcome{Output: map[string]any{"text": text}}
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return Outcome{Output: map[string]any{"text": text}}
	}

	var out Outcome
	if o := root.Get("output"); o.IsObject() {
		out.Output, _ = o.Value().(map[string]any)
	} else {
		out.Output, _ = root.Value().(map[string]any)
		delete(out.Output, "knowledge_updates")
	}
	if k := root.Get("knowledge_updates"); k.IsObject() {
		out.KnowledgeUpdates, _ = k.Value().(map[string]any)
	}
	if out.Output == nil {
		out.Output = map[string]any{}
	}
	return out
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
