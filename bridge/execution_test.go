package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecution_Lifecycle(t *testing.T) {
	clock := newClock()
	b := newTestBridge(clock)
	pkg := testPackage()

	exec, err := b.NewExecution(pkg, "analyst")
	require.NoError(t, err)
	assert.Equal(t, StateCreated, exec.State())
	assert.Equal(t, pkg.PackageID, exec.Config().ContextPackageID)

	exec.Log(core.LogDebug, "before start")
	require.NoError(t, exec.Start())
	assert.Equal(t, StateExecuting, exec.State())

	clock.Advance(250 * time.Millisecond)
	exec.Log(core.LogInfo, "crunching numbers")

	res, err := exec.CompleteTask(context.Background(), map[string]any{"summary": "up 4%"}, map[string]any{"facts": []any{"revenue grew"}})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State())
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, pkg.PackageID, res.ContextPackageID)
	assert.Equal(t, "analyst", res.AgentID)
	assert.Equal(t, int64(250), res.ExecutionTimeMs)
	assert.Equal(t, map[string]any{"facts": []any{"revenue grew"}}, res.KnowledgeUpdates)

	// before start, start marker, crunching, terminal summary
	require.Len(t, res.ExecutionLogs, 4)
	assert.Equal(t, "before start", res.ExecutionLogs[0].Message)
	assert.Contains(t, res.ExecutionLogs[3].Message, "Task completed in 250ms")
	assert.Equal(t, res.ResultID, exec.Result().ResultID)

	_, err = exec.FailTask(context.Background(), "too late", "")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	_, err = exec.CompleteTask(context.Background(), nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.ErrorIs(t, exec.Start(), core.ErrInvalidTransition)

	exec.Log(core.LogInfo, "after completion")
	assert.Len(t, exec.Logs(), 5)
}

func TestExecution_FailWithoutStart(t *testing.T) {
	clock := newClock()
	b := newTestBridge(clock)

	exec, err := b.NewExecution(testPackage(), "analyst")
	require.NoError(t, err)

	res, err := exec.FailTask(context.Background(), "timeout", "E_TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, exec.State())
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, "timeout", res.ErrorMessage)
	assert.Equal(t, "E_TIMEOUT", res.ErrorCode)
	assert.Equal(t, res.StartedAt, res.CompletedAt)
	require.Len(t, res.ExecutionLogs, 1)
	assert.Equal(t, core.LogError, res.ExecutionLogs[0].Level)
}

func TestExecution_FailTaskRequiresMessage(t *testing.T) {
	b := newTestBridge(newClock())
	exec, err := b.NewExecution(testPackage(), "analyst")
	require.NoError(t, err)

	_, err = exec.FailTask(context.Background(), "", "")
	var valErr *core.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, StateCreated, exec.State())
}

func TestExecution_NewExecutionInjectionError(t *testing.T) {
	b := newTestBridge(newClock())
	pkg := testPackage()
	pkg.TaskDescription = ""

	exec, err := b.NewExecution(pkg, "analyst")
	assert.Nil(t, exec)
	var injErr *core.InjectionError
	require.True(t, errors.As(err, &injErr))
	assert.Equal(t, "task_description", injErr.Field)
}

func TestExecution_Run(t *testing.T) {
	b := newTestBridge(newClock())

	t.Run("success", func(t *testing.T) {
		exec, err := b.NewExecution(testPackage(), "analyst")
		require.NoError(t, err)

		res, err := exec.Run(context.Background(), WorkerFunc(func(_ context.Context, task Task) (Outcome, error) {
			task.Log(core.LogInfo, "working on "+task.Description)
			assert.Equal(t, "analyst", task.AgentID)
			assert.Equal(t, task.ContextPackageID, task.Memory.ContextID)
			assert.Contains(t, task.SystemPrompt, "use EUR")
			return Outcome{Output: map[string]any{"ok": true}}, nil
		}))
		require.NoError(t, err)
		assert.Equal(t, core.StatusCompleted, res.Status)
		assert.Equal(t, map[string]any{"ok": true}, res.OutputData)
		assert.Equal(t, "working on Summarize Q3 revenue", res.ExecutionLogs[1].Message)
	})

	t.Run("worker error", func(t *testing.T) {
		exec, err := b.NewExecution(testPackage(), "analyst")
		require.NoError(t, err)

		res, err := exec.Run(context.Background(), WorkerFunc(func(context.Context, Task) (Outcome, error) {
			return Outcome{}, errors.New("upstream unavailable")
		}))
		require.NoError(t, err)
		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Equal(t, "upstream unavailable", res.ErrorMessage)
		assert.Equal(t, CodeExecutionError, res.ErrorCode)
	})

	t.Run("cancelled", func(t *testing.T) {
		exec, err := b.NewExecution(testPackage(), "analyst")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		go func() {
			<-started
			cancel()
		}()

		res, err := exec.Run(ctx, WorkerFunc(func(ctx context.Context, _ Task) (Outcome, error) {
			close(started)
			<-ctx.Done()
			return Outcome{}, ctx.Err()
		}))
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, res)
		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Equal(t, CodeCancelled, res.ErrorCode)
		assert.Equal(t, StateFailed, exec.State())
	})

	t.Run("already finished", func(t *testing.T) {
		exec, err := b.NewExecution(testPackage(), "analyst")
		require.NoError(t, err)
		_, err = exec.CompleteTask(context.Background(), nil, nil)
		require.NoError(t, err)

		_, err = exec.Run(context.Background(), WorkerFunc(func(context.Context, Task) (Outcome, error) {
			return Outcome{}, nil
		}))
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
	})
}

func TestExecution_CompleteTaskCancelledContext(t *testing.T) {
	b := newTestBridge(newClock())
	exec, err := b.NewExecution(testPackage(), "analyst")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = exec.CompleteTask(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCreated, exec.State())
}
