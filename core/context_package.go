package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	// DefaultPromptVersion is applied when a package does not name one.
	DefaultPromptVersion = "1.0.0"

	// CurrentSchemaVersion is stamped onto packages built by this module.
	CurrentSchemaVersion = "1.1"

	// LegacySchemaVersion is assumed for packages that carry no version.
	LegacySchemaVersion = "1.0"

	// MinPriority and MaxPriority bound ContextPackage.Priority.
	MinPriority = 0
	MaxPriority = 10
)

// ContextPackage is the envelope a parent agent hands to a sub-agent. It is
// treated as immutable once built: every transformation (compression,
// default filling) returns a fresh deep copy.
type ContextPackage struct {
	PackageID          string         `json:"package_id"`
	TaskDescription    string         `json:"task_description"`
	Constraints        []string       `json:"constraints"`
	RelevantKnowledge  Values         `json:"relevant_knowledge"`
	InputData          map[string]any `json:"input_data"`
	ShortTermContext   []string       `json:"short_term_context"`
	MidTermContext     map[string]any `json:"mid_term_context"`
	LongTermReferences []string       `json:"long_term_references"`
	PromptVersion      string         `json:"prompt_version"`
	ParentAgentID      string         `json:"parent_agent_id,omitempty"`
	TargetAgentID      string         `json:"target_agent_id,omitempty"`
	Priority           int            `json:"priority"`
	MaxTokens          *int           `json:"max_tokens,omitempty"`
	SchemaVersion      string         `json:"schema_version,omitempty"`
	CreatedAt          time.Time      `json:"created_at,omitzero"`
}

// HasBudget reports whether a token budget is set.
func (p *ContextPackage) HasBudget() bool { return p.MaxTokens != nil }

// Budget returns the token budget or -1 when unbounded.
func (p *ContextPackage) Budget() int {
	if p.MaxTokens == nil {
		return -1
	}
	return *p.MaxTokens
}

// Clone returns a deep copy sharing no mutable state with p. Nil collections
// are normalized to empty ones.
func (p *ContextPackage) Clone() *ContextPackage {
	cp := *p
	cp.Constraints = CloneStrings(p.Constraints)
	cp.RelevantKnowledge = p.RelevantKnowledge.Clone()
	cp.InputData = CloneMap(p.InputData)
	cp.ShortTermContext = CloneStrings(p.ShortTermContext)
	cp.MidTermContext = CloneMap(p.MidTermContext)
	cp.LongTermReferences = CloneStrings(p.LongTermReferences)
	if p.MaxTokens != nil {
		budget := *p.MaxTokens
		cp.MaxTokens = &budget
	}
	return &cp
}

// WithDefaults returns a copy with every optional field resolved to its
// documented default.
func (p *ContextPackage) WithDefaults() *ContextPackage {
	cp := p.Clone()
	if cp.PromptVersion == "" {
		cp.PromptVersion = DefaultPromptVersion
	}
	if cp.SchemaVersion == "" {
		cp.SchemaVersion = LegacySchemaVersion
	}
	return cp
}

// ToJSON serializes the package.
func (p *ContextPackage) ToJSON() ([]byte, error) {
	return json.Marshal(p.Clone())
}

// ToMap returns the package in its loosely typed wire shape (the form a
// schema validator inspects).
func (p *ContextPackage) ToMap() map[string]any {
	m := map[string]any{
		"package_id":           p.PackageID,
		"task_description":     p.TaskDescription,
		"constraints":          toAnyList(p.Constraints),
		"relevant_knowledge":   p.RelevantKnowledge.ToMap(),
		"input_data":           CloneMap(p.InputData),
		"short_term_context":   toAnyList(p.ShortTermContext),
		"mid_term_context":     CloneMap(p.MidTermContext),
		"long_term_references": toAnyList(p.LongTermReferences),
		"prompt_version":       p.PromptVersion,
		"priority":             p.Priority,
	}
	if p.ParentAgentID != "" {
		m["parent_agent_id"] = p.ParentAgentID
	}
	if p.TargetAgentID != "" {
		m["target_agent_id"] = p.TargetAgentID
	}
	if p.MaxTokens != nil {
		m["max_tokens"] = *p.MaxTokens
	}
	if p.SchemaVersion != "" {
		m["schema_version"] = p.SchemaVersion
	}
	return m
}

// ContextPackageFromJSON decodes a package. Malformed JSON yields a
// *ParseError; a well formed document whose fields carry the wrong JSON type
// yields a *ValidationError naming the field.
func ContextPackageFromJSON(data []byte) (*ContextPackage, error) {
	var p ContextPackage
	if err := decodeStrict(data, "context package", &p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// ContextPackageFromMap decodes a package from its loosely typed wire shape.
func ContextPackageFromMap(raw map[string]any) (*ContextPackage, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &ParseError{Source: "context package", Err: err}
	}
	return ContextPackageFromJSON(data)
}

func decodeStrict(data []byte, source string, dst any) error {
	if !json.Valid(data) {
		var v any
		return &ParseError{Source: source, Err: json.Unmarshal(data, &v)}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if i := strings.IndexByte(field, '.'); i > 0 {
				field = field[:i]
			}
			if field == "" {
				field = source
			}
			return NewValidationError(field, "expected "+typeErr.Type.String()+", got "+typeErr.Value)
		}
		return &ParseError{Source: source, Err: err}
	}
	return nil
}

func toAnyList(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
