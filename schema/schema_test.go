package schema

import (
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPackage() map[string]any {
	return map[string]any{
		"package_id":         "ctx_1",
		"task_description":   "analyze sales data",
		"constraints":        []any{"use python"},
		"relevant_knowledge": map[string]any{"region": "EU"},
		"input_data":         map[string]any{"file": "q3.csv"},
		"prompt_version":     "1.0.0",
		"priority":           float64(5),
	}
}

func TestValidate_Valid(t *testing.T) {
	res := New().Validate(validPackage())
	assert.True(t, res.Valid, res.Errors)
	assert.Empty(t, res.Fields)
	assert.NoError(t, res.Err())
}

func TestValidate_MissingRequired(t *testing.T) {
	raw := validPackage()
	delete(raw, "task_description")

	res := New().Validate(raw)
	require.False(t, res.Valid)
	assert.Contains(t, res.Fields, "task_description")

	var vErr *core.ValidationError
	require.ErrorAs(t, res.Err(), &vErr)
	assert.True(t, vErr.HasField("task_description"))
}

func TestValidate_PriorityBounds(t *testing.T) {
	tests := []struct {
		name     string
		priority any
		valid    bool
	}{
		{"lower bound", 0, true},
		{"upper bound", 10, true},
		{"above range", 15, false},
		{"negative", -1, false},
		{"fraction", 2.5, false},
		{"string", "high", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validPackage()
			raw["priority"] = tt.priority
			res := New().Validate(raw)
			assert.Equal(t, tt.valid, res.Valid, res.Errors)
			if !tt.valid {
				assert.Equal(t, []string{"priority"}, res.Fields)
			}
		})
	}
}

func TestValidate_TypeErrors(t *testing.T) {
	raw := validPackage()
	raw["constraints"] = []any{"ok", 3}
	raw["input_data"] = "not an object"

	res := New().Validate(raw)
	require.False(t, res.Valid)
	assert.ElementsMatch(t, []string{"constraints", "input_data"}, res.Fields)
}

func TestValidate_EmptyTask(t *testing.T) {
	raw := validPackage()
	raw["task_description"] = "   "
	res := New().Validate(raw)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"task_description"}, res.Fields)
}

func TestValidate_PromptVersion(t *testing.T) {
	raw := validPackage()
	raw["prompt_version"] = "latest"
	res := New().Validate(raw)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"prompt_version"}, res.Fields)
}

func TestValidate_SchemaVersions(t *testing.T) {
	raw := validPackage()
	raw["max_tokens"] = 0
	raw["short_term_context"] = "oops"

	legacy := New(func(o *Options) { o.SchemaVersion = V1_0 })
	assert.True(t, legacy.Validate(raw).Valid, "1.0 ignores fields introduced later")

	res := New().Validate(raw)
	require.False(t, res.Valid)
	assert.ElementsMatch(t, []string{"max_tokens", "short_term_context"}, res.Fields)
}

func TestValidatePackage(t *testing.T) {
	budget := 200
	p := &core.ContextPackage{
		PackageID:       "ctx_2",
		TaskDescription: "summarize",
		PromptVersion:   core.DefaultPromptVersion,
		Priority:        3,
		MaxTokens:       &budget,
	}
	assert.True(t, New().ValidatePackage(p).Valid)

	p.Priority = 11
	assert.False(t, New().ValidatePackage(p).Valid)
	assert.False(t, New().ValidatePackage(nil).Valid)
}

func TestValidateJSON(t *testing.T) {
	v := New()

	res, err := v.ValidateJSON([]byte(`{"package_id":"ctx_1","task_description":"t","priority":3}`))
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Errors)

	res, err = v.ValidateJSON([]byte(`{"package_id":"ctx_1","priority":15}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task_description", "priority"}, res.Fields)

	_, err = v.ValidateJSON([]byte(`{"package_id":`))
	var pErr *core.ParseError
	assert.ErrorAs(t, err, &pErr)

	_, err = v.ValidateJSON([]byte(`[1,2]`))
	assert.ErrorAs(t, err, &pErr)
}

func TestValidateJSON_DuplicateKeys(t *testing.T) {
	v := New()

	_, err := v.ValidateJSON([]byte(`{"package_id":"ctx_1","task_description":"ok","task_description":"","priority":5,"priority":99}`))
	var pErr *core.ParseError
	require.ErrorAs(t, err, &pErr)
	assert.Contains(t, err.Error(), `"task_description"`)

	_, err = v.ValidateJSON([]byte(`{"package_id":"ctx_1","task_description":"t","input_data":{"a":1,"a":2}}`))
	require.ErrorAs(t, err, &pErr)
	assert.Contains(t, err.Error(), `"input_data.a"`)

	_, err = v.ValidateResultJSON([]byte(`{"result_id":"r","context_package_id":"c","agent_id":"a","status":"completed","status":"exploded"}`))
	require.ErrorAs(t, err, &pErr)

	res, err := v.ValidateJSON([]byte(`{"package_id":"ctx_1","task_description":"t","input_data":{"a":1},"relevant_knowledge":{"a":2}}`))
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Errors)
}

func TestValidateResult(t *testing.T) {
	raw := map[string]any{
		"result_id":          "res_1",
		"context_package_id": "ctx_1",
		"agent_id":           "worker",
		"status":             "completed",
		"output_data":        map[string]any{"answer": 42},
		"execution_logs":     []any{map[string]any{"level": "info", "message": "done"}},
		"started_at":         "2024-01-01T10:00:00Z",
		"completed_at":       "2024-01-01T10:00:01Z",
	}
	v := New()
	assert.True(t, v.ValidateResult(raw).Valid)

	raw["status"] = "pending"
	raw["completed_at"] = "2024-01-01T09:00:00Z"
	res := v.ValidateResult(raw)
	require.False(t, res.Valid)
	assert.ElementsMatch(t, []string{"status", "completed_at"}, res.Fields)
}

func TestValidateResultJSON(t *testing.T) {
	res, err := New().ValidateResultJSON([]byte(`{"result_id":"r","context_package_id":"c","agent_id":"a","status":"failed","error_message":"boom","execution_logs":[1]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"execution_logs"}, res.Fields)
}

func TestValidateResultPackage(t *testing.T) {
	r := &core.ResultPackage{
		ResultID:         "res_1",
		ContextPackageID: "ctx_1",
		AgentID:          "a",
		Status:           core.StatusFailed,
		ErrorMessage:     "boom",
	}
	assert.True(t, New().ValidateResultPackage(r).Valid)

	r.ErrorMessage = ""
	assert.Equal(t, []string{"error_message"}, New().ValidateResultPackage(r).Fields)
}
