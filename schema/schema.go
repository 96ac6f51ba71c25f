// Package schema implements structural, type and range validation for
// context and result envelopes. Validation is pure: it inspects the loosely
// typed wire form (a decoded map, raw JSON bytes or a struct projected with
// ToMap) and never mutates its input.
package schema

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"golang.org/x/mod/semver"
)

// Version identifies a context package schema revision.
type Version string

const (
	// V1_0 is the original package shape (no memory tiers, no budget).
	V1_0 Version = "1.0"
	// V1_1 adds memory tiers, routing ids and the token budget.
	V1_1 Version = "1.1"
	// Latest is the revision used when none is configured.
	Latest = V1_1
)

// atLeast reports whether v is the same as or newer than other.
func (v Version) atLeast(other Version) bool {
	return semver.Compare("v"+string(v), "v"+string(other)) >= 0
}

// Valid reports whether v is a known revision.
func (v Version) Valid() bool { return v == V1_0 || v == V1_1 }

type fieldType int

const (
	typeString fieldType = iota
	typeInteger
	typeObject
	typeArray
	typeStringArray
)

func (t fieldType) String() string {
	switch t {
	case typeString:
		return "string"
	case typeInteger:
		return "integer"
	case typeObject:
		return "object"
	case typeStringArray:
		return "array of strings"
	default:
		return "array"
	}
}

type fieldSpec struct {
	name     string
	typ      fieldType
	required bool
	since    Version
}

var contextFields = []fieldSpec{
	{name: "package_id", typ: typeString, required: true, since: V1_0},
	{name: "task_description", typ: typeString, required: true, since: V1_0},
	{name: "constraints", typ: typeStringArray, since: V1_0},
	{name: "relevant_knowledge", typ: typeObject, since: V1_0},
	{name: "input_data", typ: typeObject, since: V1_0},
	{name: "prompt_version", typ: typeString, since: V1_0},
	{name: "priority", typ: typeInteger, since: V1_0},
	{name: "short_term_context", typ: typeStringArray, since: V1_1},
	{name: "mid_term_context", typ: typeObject, since: V1_1},
	{name: "long_term_references", typ: typeStringArray, since: V1_1},
	{name: "parent_agent_id", typ: typeString, since: V1_1},
	{name: "target_agent_id", typ: typeString, since: V1_1},
	{name: "max_tokens", typ: typeInteger, since: V1_1},
	{name: "schema_version", typ: typeString, since: V1_1},
}

var resultFields = []fieldSpec{
	{name: "result_id", typ: typeString, required: true},
	{name: "context_package_id", typ: typeString, required: true},
	{name: "agent_id", typ: typeString, required: true},
	{name: "status", typ: typeString, required: true},
	{name: "output_data", typ: typeObject},
	{name: "execution_logs", typ: typeArray},
	{name: "knowledge_updates", typ: typeObject},
	{name: "error_message", typ: typeString},
	{name: "error_code", typ: typeString},
	{name: "execution_time_ms", typ: typeInteger},
	{name: "started_at", typ: typeString},
	{name: "completed_at", typ: typeString},
}

// Result is the outcome of a validation pass.
type Result struct {
	Valid  bool     `json:"is_valid"`
	Errors []string `json:"errors"`
	Fields []string `json:"fields"`
}

// Err converts an invalid result into a *core.ValidationError, or returns nil
// when the input was valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &core.ValidationError{Fields: append([]string(nil), r.Fields...), Errors: append([]string(nil), r.Errors...)}
}

// collector accumulates field errors, de-duplicating field names.
type collector struct {
	errors []string
	fields []string
	seen   map[string]bool
}

func newCollector() *collector { return &collector{seen: map[string]bool{}} }

func (c *collector) add(field, format string, args ...any) {
	c.errors = append(c.errors, field+": "+fmt.Sprintf(format, args...))
	if !c.seen[field] {
		c.seen[field] = true
		c.fields = append(c.fields, field)
	}
}

func (c *collector) result() Result {
	return Result{Valid: len(c.errors) == 0, Errors: c.errors, Fields: c.fields}
}

// Options configure a Validator.
type Options struct {
	// SchemaVersion selects the context package revision to validate
	// against. Fields introduced after it are ignored.
	SchemaVersion Version
}

// Validator checks context and result envelopes.
type Validator struct {
	opts Options
}

// New creates a Validator. The schema version defaults to Latest.
func New(optFns ...func(o *Options)) *Validator {
	opts := Options{SchemaVersion: Latest}
	for _, fn := range optFns {
		fn(&opts)
	}
	if !opts.SchemaVersion.Valid() {
		opts.SchemaVersion = Latest
	}
	return &Validator{opts: opts}
}

// SchemaVersion returns the configured revision.
func (v *Validator) SchemaVersion() Version { return v.opts.SchemaVersion }

// Validate checks a decoded context package map.
func (v *Validator) Validate(raw map[string]any) Result {
	return v.validateContext(mapLookup(raw))
}

// ValidatePackage checks a context package struct.
func (v *Validator) ValidatePackage(p *core.ContextPackage) Result {
	if p == nil {
		c := newCollector()
		c.add("package", "is nil")
		return c.result()
	}
	return v.Validate(p.ToMap())
}

// ValidateResult checks a decoded result package map.
func (v *Validator) ValidateResult(raw map[string]any) Result {
	return validateResult(mapLookup(raw))
}

// ValidateResultPackage checks a result package struct.
func (v *Validator) ValidateResultPackage(r *core.ResultPackage) Result {
	if r == nil {
		c := newCollector()
		c.add("result", "is nil")
		return c.result()
	}
	return v.ValidateResult(r.ToMap())
}

func (v *Validator) validateContext(lookup lookupFunc) Result {
	c := newCollector()
	for _, spec := range contextFields {
		if !v.opts.SchemaVersion.atLeast(spec.since) {
			continue
		}
		checkField(c, spec, lookup(spec.name))
	}

	if task := lookup("task_description"); task.kind == kindString && strings.TrimSpace(task.str) == "" {
		c.add("task_description", "must not be empty")
	}
	if id := lookup("package_id"); id.kind == kindString && strings.TrimSpace(id.str) == "" {
		c.add("package_id", "must not be empty")
	}
	if p := lookup("priority"); p.kind == kindNumber && isIntegral(p.num) {
		if p.num < core.MinPriority || p.num > core.MaxPriority {
			c.add("priority", "must be between %d and %d, got %v", core.MinPriority, core.MaxPriority, p.num)
		}
	}
	if pv := lookup("prompt_version"); pv.kind == kindString && pv.str != "" {
		if !semver.IsValid("v" + strings.TrimPrefix(pv.str, "v")) {
			c.add("prompt_version", "must be a semantic version, got %q", pv.str)
		}
	}
	if v.opts.SchemaVersion.atLeast(V1_1) {
		if mt := lookup("max_tokens"); mt.kind == kindNumber && isIntegral(mt.num) && mt.num <= 0 {
			c.add("max_tokens", "must be positive, got %v", mt.num)
		}
	}
	return c.result()
}

func validateResult(lookup lookupFunc) Result {
	c := newCollector()
	for _, spec := range resultFields {
		checkField(c, spec, lookup(spec.name))
	}
	for _, name := range []string{"result_id", "context_package_id", "agent_id"} {
		if f := lookup(name); f.kind == kindString && strings.TrimSpace(f.str) == "" {
			c.add(name, "must not be empty")
		}
	}

	status := lookup("status")
	if status.kind == kindString && !core.ResultStatus(status.str).Valid() {
		c.add("status", "must be one of [%s %s], got %q", core.StatusCompleted, core.StatusFailed, status.str)
	}
	if status.kind == kindString && core.ResultStatus(status.str) == core.StatusFailed {
		if msg := lookup("error_message"); msg.kind != kindString || strings.TrimSpace(msg.str) == "" {
			c.add("error_message", "is required when status is failed")
		}
	}
	if ms := lookup("execution_time_ms"); ms.kind == kindNumber && ms.num < 0 {
		c.add("execution_time_ms", "must not be negative, got %v", ms.num)
	}
	if logs := lookup("execution_logs"); logs.kind == kindArray {
		for i, k := range logs.elems {
			if k != kindObject {
				c.add("execution_logs", "entry %d must be an object", i)
			}
		}
	}

	started, sOK := parseTime(c, "started_at", lookup("started_at"))
	completed, cOK := parseTime(c, "completed_at", lookup("completed_at"))
	if sOK && cOK && completed.Before(started) {
		c.add("completed_at", "must not be before started_at")
	}
	return c.result()
}

func parseTime(c *collector, name string, f fieldValue) (time.Time, bool) {
	if f.kind != kindString {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, f.str)
	if err != nil {
		c.add(name, "must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func checkField(c *collector, spec fieldSpec, f fieldValue) {
	if !f.present || f.kind == kindNull {
		if spec.required {
			c.add(spec.name, "is required")
		}
		return
	}
	if !matches(spec.typ, f) {
		c.add(spec.name, "expected type %s, got %s", spec.typ, f.describe())
	}
}

func matches(t fieldType, f fieldValue) bool {
	switch t {
	case typeString:
		return f.kind == kindString
	case typeInteger:
		return f.kind == kindNumber && isIntegral(f.num)
	case typeObject:
		return f.kind == kindObject
	case typeArray:
		return f.kind == kindArray
	case typeStringArray:
		if f.kind != kindArray {
			return false
		}
		for _, k := range f.elems {
			if k != kindString {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func isIntegral(n float64) bool {
	return !math.IsInf(n, 0) && !math.IsNaN(n) && n == math.Trunc(n)
}
