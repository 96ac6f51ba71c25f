package unpacker

import (
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/packer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newUnpacker() *Unpacker {
	return New(func(o *Options) { o.Clock = func() time.Time { return fixedNow } })
}

func TestRoundTrip(t *testing.T) {
	pkg, err := packer.New().Pack("分析销售数据", func(o *packer.PackOptions) {
		o.Constraints = []string{"使用Python"}
		o.RelevantKnowledge = map[string]any{"region": "APAC", "threshold": 0.5}
		o.InputData = map[string]any{"file": "sales.csv"}
		o.ShortTermContext = []string{"user: 请分析"}
		o.MidTermContext = map[string]any{"quarter": "Q3"}
		o.LongTermReferences = []string{"kn_1"}
		o.ParentAgentID = "coordinator"
	})
	require.NoError(t, err)

	data, err := pkg.ToJSON()
	require.NoError(t, err)

	u, err := newUnpacker().UnpackJSON(data)
	require.NoError(t, err)

	assert.Equal(t, pkg.PackageID, u.PackageID)
	assert.Equal(t, "分析销售数据", u.TaskDescription)
	assert.Equal(t, []string{"使用Python"}, u.Constraints)
	assert.Equal(t, "sales.csv", u.InputData["file"])
	assert.Equal(t, "coordinator", u.ParentAgentID)
	assert.Equal(t, core.CurrentSchemaVersion, u.SchemaVersion)
	assert.True(t, pkg.RelevantKnowledge["threshold"].Equal(u.RelevantKnowledge["threshold"]))

	back := u.Package()
	back.CreatedAt = pkg.CreatedAt
	assert.Equal(t, pkg, back)
}

func TestUnpackJSON_Errors(t *testing.T) {
	u := newUnpacker()

	_, err := u.UnpackJSON([]byte(`{"package_id": "ctx_1", "task_description":`))
	var pErr *core.ParseError
	require.ErrorAs(t, err, &pErr)

	_, err = u.UnpackJSON([]byte(`{"package_id": "ctx_1"}`))
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.HasField("task_description"))
	assert.False(t, errors.As(err, &pErr))

	_, err = u.UnpackJSON([]byte(`{"package_id": "ctx_1", "task_description": "t", "constraints": "scalar"}`))
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.HasField("constraints"))
}

func TestUnpack_StructAndJSONAgree(t *testing.T) {
	pkg, err := packer.New().Pack("分析销售数据", func(o *packer.PackOptions) {
		o.Constraints = []string{"c1"}
		o.InputData = map[string]any{"x": 1}
	})
	require.NoError(t, err)

	direct, err := newUnpacker().Unpack(pkg)
	require.NoError(t, err)

	data, err := pkg.ToJSON()
	require.NoError(t, err)
	wire, err := newUnpacker().UnpackJSON(data)
	require.NoError(t, err)

	assert.Equal(t, wire.InputData, direct.InputData)
	assert.Equal(t, wire.MidTermContext, direct.MidTermContext)

	// Hand built packages are normalized on the struct path too.
	raw := &core.ContextPackage{PackageID: "ctx_raw", TaskDescription: "t", InputData: map[string]any{"n": 7}}
	out, err := newUnpacker().Unpack(raw)
	require.NoError(t, err)
	assert.Equal(t, float64(7), out.InputData["n"])
	assert.Equal(t, 7, raw.InputData["n"])
}

func TestUnpackJSON_DuplicateKeysRejected(t *testing.T) {
	u := newUnpacker()

	// encoding/json keeps the last occurrence, which would carry an empty
	// task and an out of range priority past validation.
	out, err := u.UnpackJSON([]byte(`{"package_id":"ctx_1","task_description":"ok","task_description":"","priority":5,"priority":99}`))
	assert.Nil(t, out)
	var pErr *core.ParseError
	require.ErrorAs(t, err, &pErr)

	_, err = u.UnpackMap(map[string]any{"package_id": "ctx_1", "task_description": "ok", "priority": 99})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.HasField("priority"))
}

func TestUnpackJSON_LegacyPackageGetsDefaults(t *testing.T) {
	u, err := newUnpacker().UnpackJSON([]byte(`{"package_id":"ctx_old","task_description":"legacy"}`))
	require.NoError(t, err)

	assert.Equal(t, core.LegacySchemaVersion, u.SchemaVersion)
	assert.Equal(t, core.DefaultPromptVersion, u.PromptVersion)
	assert.NotNil(t, u.Constraints)
	assert.NotNil(t, u.RelevantKnowledge)
	assert.NotNil(t, u.InputData)
	assert.NotNil(t, u.ShortTermContext)
	assert.NotNil(t, u.MidTermContext)
	assert.NotNil(t, u.LongTermReferences)
	assert.Nil(t, u.MaxTokens)
	assert.Equal(t, fixedNow, u.UnpackedAt)
}

func TestUnpackMap(t *testing.T) {
	u, err := newUnpacker().UnpackMap(map[string]any{
		"package_id":       "ctx_map",
		"task_description": "from map",
		"priority":         7,
		"max_tokens":       300,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, u.Priority)
	require.NotNil(t, u.MaxTokens)
	assert.Equal(t, 300, *u.MaxTokens)

	_, err = newUnpacker().UnpackMap(map[string]any{"package_id": "ctx_map", "task_description": "x", "priority": 15})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.HasField("priority"))
}

func TestUnpack_Struct(t *testing.T) {
	_, err := newUnpacker().Unpack(&core.ContextPackage{PackageID: "ctx_s"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.HasField("task_description"))

	_, err = newUnpacker().Unpack(nil)
	require.ErrorAs(t, err, &vErr)
}

func TestExtractForMemory(t *testing.T) {
	pkg := &core.ContextPackage{
		PackageID:          "ctx_m",
		TaskDescription:    "task",
		Constraints:        []string{"c"},
		RelevantKnowledge:  core.Values{"k": core.StringValue("v")},
		ShortTermContext:   []string{"a", "b"},
		MidTermContext:     map[string]any{"m": 1},
		LongTermReferences: []string{"kn_1"},
	}

	proj := newUnpacker().ExtractForMemory(pkg)
	assert.Equal(t, MemoryProjection{
		ShortTerm:    []string{"a", "b"},
		MidTerm:      map[string]any{"m": 1},
		LongTermRefs: []string{"kn_1"},
		Task:         "task",
		Timestamp:    fixedNow,
	}, proj)

	proj.ShortTerm[0] = "changed"
	assert.Equal(t, "a", pkg.ShortTermContext[0])
}
