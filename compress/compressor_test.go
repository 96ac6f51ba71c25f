package compress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func budget(n int) *int { return &n }

func historyPackage(n, maxTokens int) *core.ContextPackage {
	history := make([]string, n)
	for i := range history {
		history[i] = fmt.Sprintf("msg_%d: %s", i, strings.Repeat("x", 40))
	}
	return &core.ContextPackage{
		PackageID:        "ctx_history",
		TaskDescription:  "summarize the conversation",
		Constraints:      []string{"be brief"},
		InputData:        map[string]any{"file": "chat.log", "rows": float64(100)},
		ShortTermContext: history,
		Priority:         5,
		MaxTokens:        budget(maxTokens),
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
	assert.Equal(t, 6, EstimateTokens("分析销售数据"))
	assert.Positive(t, EstimateTokens("\xff\xfe invalid utf-8"))
}

func TestCompress_NoBudgetIsNoOp(t *testing.T) {
	pkg := historyPackage(10, 0)
	pkg.MaxTokens = nil

	out, rep := New().CompressWithReport(pkg)
	assert.Equal(t, pkg.Clone(), out)
	assert.NotSame(t, pkg, out)
	assert.True(t, rep.WithinBudget)
	assert.Equal(t, rep.OriginalTokens, rep.CompressedTokens)
	assert.Equal(t, 1.0, rep.CompressionRatio)
}

func TestCompress_TruncationKeepsNewest(t *testing.T) {
	pkg := historyPackage(100, 200)

	out, rep := New().CompressWithReport(pkg)
	require.NotEmpty(t, out.ShortTermContext)
	assert.Contains(t, out.ShortTermContext[len(out.ShortTermContext)-1], "msg_99")
	assert.Equal(t, "ctx_history", out.PackageID)
	assert.True(t, rep.WithinBudget)
	assert.LessOrEqual(t, rep.CompressedTokens, 200)
	assert.Equal(t, 100-len(out.ShortTermContext), rep.DroppedShortTerm)
	assert.Contains(t, rep.TrimmedFields, "short_term_context")

	// The original stays untouched.
	assert.Len(t, pkg.ShortTermContext, 100)
}

func TestCompress_Idempotent(t *testing.T) {
	for _, s := range []Strategy{StrategyTruncate, StrategyPriority} {
		t.Run(string(s), func(t *testing.T) {
			c := New(func(o *Options) { o.Strategy = s })
			once := c.Compress(historyPackage(100, 200))
			twice := c.Compress(once)
			assert.Equal(t, once, twice)
		})
	}
}

func TestCompress_BudgetMonotonicityAndInputPreservation(t *testing.T) {
	input := map[string]any{
		"rows":   []any{"a", "b"},
		"nested": map[string]any{"deep": strings.Repeat("payload ", 200)},
	}
	for _, s := range []Strategy{StrategyTruncate, StrategyPriority} {
		for _, b := range []int{1, 50, 200, 5000} {
			t.Run(fmt.Sprintf("%s/%d", s, b), func(t *testing.T) {
				pkg := historyPackage(30, b)
				pkg.InputData = core.CloneMap(input)
				pkg.RelevantKnowledge = core.Values{"region": core.StringValue(strings.Repeat("eu ", 300))}

				out, rep := New(func(o *Options) { o.Strategy = s }).CompressWithReport(pkg)
				assert.LessOrEqual(t, rep.CompressedTokens, rep.OriginalTokens)
				assert.Equal(t, input, out.InputData)
				assert.NotEmpty(t, out.TaskDescription)
			})
		}
	}
}

func TestCompress_BestEffortOverBudget(t *testing.T) {
	pkg := historyPackage(5, 1)
	pkg.InputData = map[string]any{"blob": strings.Repeat("z", 4000)}

	out, rep := New().CompressWithReport(pkg)
	assert.False(t, rep.WithinBudget)
	assert.Empty(t, out.ShortTermContext)
	assert.Empty(t, out.Constraints)
	assert.Equal(t, pkg.InputData, out.InputData)
}

func TestNew_PartialOptionsKeepDefaults(t *testing.T) {
	c := New(func(o *Options) { *o = Options{Strategy: StrategyPriority} })
	assert.Equal(t, StrategyPriority, c.opts.Strategy)
	assert.Equal(t, 5, c.opts.MaxConstraints)
	assert.Equal(t, 256, c.opts.MaxValueRunes)
	assert.Equal(t, defaultCharsPerToken, c.opts.CharsPerToken)
}

func TestCompress_LogsOutcome(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: buf})

	_, rep := New(func(o *Options) { o.Logger = logger }).CompressWithReport(historyPackage(5, 1))
	require.False(t, rep.WithinBudget)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "Context exceeds budget after compression", line["msg"])
	assert.Equal(t, "ctx_history", line["context_package_id"])
	assert.Equal(t, float64(1), line["budget"])
}

func TestCompress_PriorityCapsConstraintsInInsertionOrder(t *testing.T) {
	pkg := historyPackage(40, 150)
	pkg.Constraints = []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}

	out, rep := New(func(o *Options) { o.Strategy = StrategyPriority }).CompressWithReport(pkg)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, out.Constraints)
	assert.Equal(t, 2, rep.DroppedConstraints)
}

func TestCompress_PriorityShrinksKnowledgeBeforeHistory(t *testing.T) {
	pkg := historyPackage(3, 0)
	pkg.RelevantKnowledge = core.Values{
		"a_schema": core.StringValue(strings.Repeat("s", 2000)),
		"b_notes":  core.StringValue("short"),
	}
	pkg.MaxTokens = budget(estimateDefault(pkg) - 200)

	out, rep := New(func(o *Options) { o.Strategy = StrategyPriority }).CompressWithReport(pkg)
	require.True(t, rep.WithinBudget)
	assert.Len(t, out.ShortTermContext, 3)
	s, ok := out.RelevantKnowledge["a_schema"].Str()
	require.True(t, ok)
	assert.Len(t, s, 256)
	assert.Equal(t, []string{"relevant_knowledge"}, rep.TrimmedFields)
}

func TestCompress_PriorityTruncatesTaskAsLastResort(t *testing.T) {
	pkg := &core.ContextPackage{
		PackageID:       "ctx_task",
		TaskDescription: strings.Repeat("分析销售数据", 100),
		MaxTokens:       budget(100),
	}

	out, rep := New(func(o *Options) { o.Strategy = StrategyPriority }).CompressWithReport(pkg)
	assert.True(t, rep.WithinBudget)
	assert.Contains(t, rep.TrimmedFields, "task_description")
	assert.True(t, strings.HasPrefix(pkg.TaskDescription, out.TaskDescription))
	assert.NotEmpty(t, out.TaskDescription)
}

func estimateDefault(pkg *core.ContextPackage) int { return New().EstimatePackage(pkg) }
