package bridge

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestBridge(clock *fakeClock) *Bridge {
	return New(func(o *Options) { o.Clock = clock.Now })
}

func testPackage() *core.ContextPackage {
	return &core.ContextPackage{
		PackageID:       core.NewPackageID(),
		TaskDescription: "Summarize Q3 revenue",
		Constraints:     []string{"use EUR", "max 3 bullet points"},
		RelevantKnowledge: core.Values{
			"region":  core.StringValue("EMEA"),
			"quarter": core.NumberValue(3),
		},
		InputData:          map[string]any{"revenue": 1200},
		ShortTermContext:   []string{"user asked for a summary"},
		MidTermContext:     map[string]any{"topic": "finance"},
		LongTermReferences: []string{"kn_1"},
		ParentAgentID:      "parent",
		Priority:           7,
	}
}

func TestBridge_InjectContext(t *testing.T) {
	b := newTestBridge(newClock())
	pkg := testPackage()

	cfg, err := b.InjectContext(pkg, "analyst")
	require.NoError(t, err)

	assert.Equal(t, pkg.PackageID, cfg.ContextPackageID)
	assert.Equal(t, "Summarize Q3 revenue", cfg.TaskDescription)
	assert.Equal(t, []string{"use EUR", "max 3 bullet points"}, cfg.Constraints)
	assert.Equal(t, 7, cfg.Priority)
	assert.Equal(t, "parent", cfg.ParentAgentID)
	assert.Equal(t, "analyst", cfg.TargetAgentID)
	assert.Equal(t, core.DefaultPromptVersion, cfg.PromptVersion)
	assert.NotEmpty(t, cfg.SystemPrompt)

	m := cfg.ToMap()
	for _, key := range []string{"context_package_id", "task_description", "constraints", "priority", "parent_agent_id", "target_agent_id", "prompt_version", "system_prompt"} {
		assert.Contains(t, m, key)
	}
}

func TestBridge_InjectContextErrors(t *testing.T) {
	b := newTestBridge(newClock())

	t.Run("empty task description", func(t *testing.T) {
		pkg := testPackage()
		pkg.TaskDescription = "  "
		_, err := b.InjectContext(pkg, "target")
		require.Error(t, err)

		var injErr *core.InjectionError
		require.True(t, errors.As(err, &injErr))
		assert.Equal(t, "task_description", injErr.Field)
		assert.Contains(t, err.Error(), "task_description")
	})

	t.Run("empty target", func(t *testing.T) {
		_, err := b.InjectContext(testPackage(), "")
		var injErr *core.InjectionError
		require.True(t, errors.As(err, &injErr))
		assert.Equal(t, "target_agent_id", injErr.Field)
	})

	t.Run("nil package", func(t *testing.T) {
		_, err := b.InjectContext(nil, "target")
		var injErr *core.InjectionError
		require.True(t, errors.As(err, &injErr))
	})

	t.Run("schema violation", func(t *testing.T) {
		pkg := testPackage()
		pkg.Priority = 15
		_, err := b.InjectContext(pkg, "target")
		var valErr *core.ValidationError
		require.True(t, errors.As(err, &valErr))
		assert.True(t, valErr.HasField("priority"))
	})
}

func TestBridge_BuildSystemPrompt(t *testing.T) {
	b := newTestBridge(newClock())
	pkg := testPackage()

	prompt := b.BuildSystemPrompt(pkg)
	assert.Contains(t, prompt, "Summarize Q3 revenue")
	assert.Contains(t, prompt, "use EUR")
	assert.Contains(t, prompt, "max 3 bullet points")
	assert.Contains(t, prompt, "region: EMEA")
	assert.Contains(t, prompt, "quarter: 3")
	assert.Contains(t, prompt, "user asked for a summary")
	assert.Contains(t, prompt, "kn_1")

	// Knowledge is ordered by key.
	assert.Less(t, strings.Index(prompt, "quarter: 3"), strings.Index(prompt, "region: EMEA"))

	assert.Equal(t, prompt, b.BuildSystemPrompt(pkg.Clone()))
	assert.Empty(t, b.BuildSystemPrompt(nil))
}

func TestBridge_BuildSystemPromptCustomTemplate(t *testing.T) {
	clock := newClock()

	b := New(func(o *Options) {
		o.Clock = clock.Now
		o.PromptTemplate = "{{ upper .Task }} [{{ join \"|\" .Constraints }}]"
	})
	assert.Equal(t, "SUMMARIZE Q3 REVENUE [use EUR|max 3 bullet points]", b.BuildSystemPrompt(testPackage()))

	broken := New(func(o *Options) {
		o.Clock = clock.Now
		o.PromptTemplate = "{{ .Task "
	})
	assert.Contains(t, broken.BuildSystemPrompt(testPackage()), "Summarize Q3 revenue")
}

func TestBridge_LoadToWorkingMemory(t *testing.T) {
	clock := newClock()
	b := newTestBridge(clock)
	pkg := testPackage()

	wm := b.LoadToWorkingMemory(pkg)
	assert.Equal(t, pkg.PackageID, wm.ContextID)
	assert.Equal(t, "Summarize Q3 revenue", wm.Task)
	assert.Equal(t, []string{"user asked for a summary"}, wm.ShortTerm)
	assert.Equal(t, map[string]any{"topic": "finance"}, wm.MidTerm)
	assert.Equal(t, []string{"kn_1"}, wm.LongTermRefs)
	assert.Equal(t, clock.Now(), wm.Timestamp)

	wm.MidTerm["topic"] = "changed"
	assert.Equal(t, "finance", pkg.MidTermContext["topic"])
}

func TestBridge_CreateResultPackage(t *testing.T) {
	clock := newClock()
	b := newTestBridge(clock)

	t.Run("untracked start uses call time", func(t *testing.T) {
		res, err := b.CreateResultPackage("ctx_1", "analyst", map[string]any{"answer": 42}, core.StatusCompleted)
		require.NoError(t, err)
		assert.Contains(t, res.ResultID, core.ResultPrefix)
		assert.Equal(t, clock.Now(), res.StartedAt)
		assert.Equal(t, clock.Now(), res.CompletedAt)
		assert.Equal(t, int64(0), res.ExecutionTimeMs)
		assert.Equal(t, map[string]any{"answer": 42}, res.OutputData)
	})

	t.Run("tracked start", func(t *testing.T) {
		started := clock.Now().Add(-1500 * time.Millisecond)
		res, err := b.CreateResultPackage("ctx_1", "analyst", nil, core.StatusCompleted, func(o *ResultOptions) {
			o.StartedAt = started
		})
		require.NoError(t, err)
		assert.Equal(t, started, res.StartedAt)
		assert.Equal(t, int64(1500), res.ExecutionTimeMs)
	})

	t.Run("failed requires error message", func(t *testing.T) {
		_, err := b.CreateResultPackage("ctx_1", "analyst", nil, core.StatusFailed)
		var valErr *core.ValidationError
		require.True(t, errors.As(err, &valErr))
		assert.True(t, valErr.HasField("error_message"))

		res, err := b.CreateResultPackage("ctx_1", "analyst", nil, core.StatusFailed, func(o *ResultOptions) {
			o.ErrorMessage = "timeout"
			o.ErrorCode = "E_TIMEOUT"
		})
		require.NoError(t, err)
		assert.Equal(t, "timeout", res.ErrorMessage)
		assert.Equal(t, "E_TIMEOUT", res.ErrorCode)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := b.CreateResultPackage("ctx_1", "analyst", nil, core.ResultStatus("running"))
		var valErr *core.ValidationError
		require.True(t, errors.As(err, &valErr))
		assert.True(t, valErr.HasField("status"))
	})

	t.Run("unique ids", func(t *testing.T) {
		r1, err := b.CreateResultPackage("ctx_1", "analyst", nil, core.StatusCompleted)
		require.NoError(t, err)
		r2, err := b.CreateResultPackage("ctx_1", "analyst", nil, core.StatusCompleted)
		require.NoError(t, err)
		assert.NotEqual(t, r1.ResultID, r2.ResultID)
	})
}
