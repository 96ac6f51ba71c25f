package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// State is the lifecycle position of one sub-agent execution.
type State string

// Execution states.
const (
	StateCreated   State = "created"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Error codes set on failed results produced by Run.
const (
	CodeCancelled      = "cancelled"
	CodeExecutionError = "execution_error"
)

// Execution tracks one sub-agent working on one injected package. It is not
// persisted and is safe for concurrent use.
type Execution struct {
	bridge  *Bridge
	pkg     *core.ContextPackage
	agentID string
	config  InjectedConfig

	mu        sync.Mutex
	state     State
	logs      []core.ExecutionLog
	startedAt time.Time
	result    *core.ResultPackage
}

// NewExecution injects pkg into agentID and returns an execution in the
// created state. Injection failures are returned before anything else
// happens.
func (b *Bridge) NewExecution(pkg *core.ContextPackage, agentID string) (*Execution, error) {
	resolved, err := b.resolve(pkg, agentID)
	if err != nil {
		return nil, err
	}
	return &Execution{
		bridge:  b,
		pkg:     resolved,
		agentID: agentID,
		config:  b.inject(resolved, agentID),
		state:   StateCreated,
		logs:    []core.ExecutionLog{},
	}, nil
}

// Config returns the injected configuration.
func (e *Execution) Config() InjectedConfig { return e.config }

// AgentID returns the executing sub-agent id.
func (e *Execution) AgentID() string { return e.agentID }

// Package returns a copy of the injected (defaulted) package.
func (e *Execution) Package() *core.ContextPackage { return e.pkg.Clone() }

// State returns the current lifecycle state.
func (e *Execution) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Logs returns a copy of the accumulated log lines.
func (e *Execution) Logs() []core.ExecutionLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.ExecutionLog, len(e.logs))
	copy(out, e.logs)
	return out
}

// Result returns the result built by the terminal transition, or nil.
func (e *Execution) Result() *core.ResultPackage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil
	}
	return e.result.Clone()
}

// Start moves the execution from created to executing and records the start
// time.
func (e *Execution) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCreated {
		return fmt.Errorf("%w: start from %s", core.ErrInvalidTransition, e.state)
	}
	e.state = StateExecuting
	e.startedAt = e.bridge.opts.Clock()
	e.appendLocked(core.LogInfo, "Execution started by "+e.agentID)
	e.bridge.logger.Debug("Execution started", "context_package_id", e.pkg.PackageID, "agent_id", e.agentID)
	return nil
}

// Log records a line. Lines accumulate in every state.
func (e *Execution) Log(level core.LogLevel, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appendLocked(level, msg)
}

func (e *Execution) appendLocked(level core.LogLevel, msg string) {
	e.logs = append(e.logs, core.ExecutionLog{Timestamp: e.bridge.opts.Clock(), Level: level, Message: msg})
}

// CompleteTask finishes the execution successfully. A cancelled ctx leaves
// the state untouched and returns the context error.
func (e *Execution) CompleteTask(ctx context.Context, output, knowledgeUpdates map[string]any) (*core.ResultPackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.finish(core.StatusCompleted, output, knowledgeUpdates, "", "")
}

// FailTask finishes the execution with a failure. message must not be empty.
func (e *Execution) FailTask(ctx context.Context, message, code string) (*core.ResultPackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.finish(core.StatusFailed, nil, nil, message, code)
}

func (e *Execution) finish(status core.ResultStatus, output, knowledge map[string]any, message, code string) (*core.ResultPackage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Terminal() {
		return nil, fmt.Errorf("%w: %s from %s", core.ErrInvalidTransition, status, e.state)
	}

	now := e.bridge.opts.Clock()
	started := e.startedAt
	summaryStart := started
	if summaryStart.IsZero() {
		summaryStart = now
	}
	elapsed := now.Sub(summaryStart).Milliseconds()

	logs := make([]core.ExecutionLog, len(e.logs), len(e.logs)+1)
	copy(logs, e.logs)
	if status == core.StatusCompleted {
		logs = append(logs, core.ExecutionLog{Timestamp: now, Level: core.LogInfo,
			Message: fmt.Sprintf("Task completed in %dms with %d output fields", elapsed, len(output))})
	} else {
		logs = append(logs, core.ExecutionLog{Timestamp: now, Level: core.LogError,
			Message: fmt.Sprintf("Task failed after %dms: %s", elapsed, message)})
	}

	res, err := e.bridge.CreateResultPackage(e.pkg.PackageID, e.agentID, output, status, func(o *ResultOptions) {
		o.StartedAt = started
		o.ExecutionLogs = logs
		o.KnowledgeUpdates = knowledge
		o.ErrorMessage = message
		o.ErrorCode = code
	})
	if err != nil {
		return nil, err
	}

	e.logs = logs
	e.result = res
	if status == core.StatusCompleted {
		e.state = StateCompleted
	} else {
		e.state = StateFailed
	}
	e.bridge.logger.Info("Execution finished",
		"context_package_id", e.pkg.PackageID,
		"agent_id", e.agentID,
		"result_id", res.ResultID,
		"status", string(status),
		"execution_time_ms", res.ExecutionTimeMs,
	)
	return res.Clone(), nil
}

// Run starts the execution if needed, awaits w and completes or fails the
// task with its outcome. A worker error yields a failed result with code
// execution_error and a nil error. When ctx is cancelled first the task
// fails with code cancelled and the context error is returned alongside
// the result.
func (e *Execution) Run(ctx context.Context, w Worker) (*core.ResultPackage, error) {
	if e.State() == StateCreated {
		if err := e.Start(); err != nil {
			return nil, err
		}
	}

	type outcome struct {
		out Outcome
		err error
	}
	done := make(chan outcome, 1)
	task := e.task()
	go func() {
		out, err := w.Execute(ctx, task)
		done <- outcome{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return e.cancel(ctx)
	case o := <-done:
		if o.err != nil {
			if ctx.Err() != nil {
				return e.cancel(ctx)
			}
			msg := o.err.Error()
			if msg == "" {
				msg = "worker failed"
			}
			return e.FailTask(context.WithoutCancel(ctx), msg, CodeExecutionError)
		}
		return e.CompleteTask(context.WithoutCancel(ctx), o.out.Output, o.out.KnowledgeUpdates)
	}
}

func (e *Execution) cancel(ctx context.Context) (*core.ResultPackage, error) {
	cause := ctx.Err()
	res, err := e.FailTask(context.WithoutCancel(ctx), "execution cancelled: "+cause.Error(), CodeCancelled)
	if err != nil {
		return nil, err
	}
	return res, cause
}

func (e *Execution) task() Task {
	return Task{
		ContextPackageID: e.pkg.PackageID,
		AgentID:          e.agentID,
		Description:      e.pkg.TaskDescription,
		SystemPrompt:     e.config.SystemPrompt,
		InputData:        core.CloneMap(e.pkg.InputData),
		Memory:           e.bridge.LoadToWorkingMemory(e.pkg),
		Log:              e.Log,
	}
}
