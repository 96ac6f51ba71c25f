// Package unpacker is the receiving side of the context exchange: it decodes
// and validates incoming packages and projects them into memory tiers.
package unpacker

import (
	"encoding/json"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/schema"
)

// UnpackedContext is a validated package with every optional field resolved
// to a non-nil value.
type UnpackedContext struct {
	PackageID          string
	TaskDescription    string
	Constraints        []string
	RelevantKnowledge  core.Values
	InputData          map[string]any
	ShortTermContext   []string
	MidTermContext     map[string]any
	LongTermReferences []string
	PromptVersion      string
	SchemaVersion      string
	ParentAgentID      string
	TargetAgentID      string
	Priority           int
	MaxTokens          *int
	UnpackedAt         time.Time
}

// Package rebuilds the (defaulted) context package.
func (u *UnpackedContext) Package() *core.ContextPackage {
	p := &core.ContextPackage{
		PackageID:          u.PackageID,
		TaskDescription:    u.TaskDescription,
		Constraints:        u.Constraints,
		RelevantKnowledge:  u.RelevantKnowledge,
		InputData:          u.InputData,
		ShortTermContext:   u.ShortTermContext,
		MidTermContext:     u.MidTermContext,
		LongTermReferences: u.LongTermReferences,
		PromptVersion:      u.PromptVersion,
		ParentAgentID:      u.ParentAgentID,
		TargetAgentID:      u.TargetAgentID,
		Priority:           u.Priority,
		MaxTokens:          u.MaxTokens,
		SchemaVersion:      u.SchemaVersion,
	}
	return p.Clone()
}

// MemoryProjection is the slice of a package that feeds a sub-agent's memory
// tiers. Constraints and relevant knowledge are deliberately absent.
type MemoryProjection struct {
	ShortTerm    []string       `json:"short_term"`
	MidTerm      map[string]any `json:"mid_term"`
	LongTermRefs []string       `json:"long_term_refs"`
	Task         string         `json:"task"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Options configure an Unpacker.
type Options struct {
	Validator *schema.Validator
	Logger    logging.Logger
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Unpacker validates and decodes incoming context packages.
type Unpacker struct {
	opts   Options
	logger logging.Logger
}

// New creates an Unpacker.
func New(optFns ...func(o *Options)) *Unpacker {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Validator == nil {
		opts.Validator = schema.New()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Unpacker{opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Unpack validates pkg and resolves defaults.
func (u *Unpacker) Unpack(pkg *core.ContextPackage) (*UnpackedContext, error) {
	if pkg == nil {
		return nil, core.NewValidationError("package", "is nil")
	}
	if res := u.opts.Validator.ValidatePackage(pkg); !res.Valid {
		u.logger.Warn("Context package failed validation", "context_package_id", pkg.PackageID, "fields", res.Fields)
		return nil, res.Err()
	}
	cp := pkg.WithDefaults()
	var err error
	if cp.InputData, err = core.NormalizeMap(cp.InputData); err != nil {
		return nil, core.NewValidationError("input_data", err.Error())
	}
	if cp.MidTermContext, err = core.NormalizeMap(cp.MidTermContext); err != nil {
		return nil, core.NewValidationError("mid_term_context", err.Error())
	}
	return u.resolve(cp), nil
}

// UnpackJSON decodes serialized package bytes. Malformed JSON yields a
// *core.ParseError, a contract violation a *core.ValidationError.
func (u *Unpacker) UnpackJSON(data []byte) (*UnpackedContext, error) {
	res, err := u.opts.Validator.ValidateJSON(data)
	if err != nil {
		u.logger.Warn("Context package could not be parsed", "error", err)
		return nil, err
	}
	if !res.Valid {
		u.logger.Warn("Context package failed validation", "fields", res.Fields)
		return nil, res.Err()
	}
	pkg, err := core.ContextPackageFromJSON(data)
	if err != nil {
		return nil, err
	}
	if res := u.opts.Validator.ValidatePackage(pkg); !res.Valid {
		u.logger.Warn("Decoded context package failed validation", "context_package_id", pkg.PackageID, "fields", res.Fields)
		return nil, res.Err()
	}
	return u.resolve(pkg.WithDefaults()), nil
}

// UnpackMap decodes a package from its loosely typed wire shape.
func (u *Unpacker) UnpackMap(raw map[string]any) (*UnpackedContext, error) {
	if res := u.opts.Validator.Validate(raw); !res.Valid {
		u.logger.Warn("Context package failed validation", "fields", res.Fields)
		return nil, res.Err()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &core.ParseError{Source: "context package", Err: err}
	}
	return u.UnpackJSON(data)
}

// ExtractForMemory projects pkg into the sub-agent's memory tiers.
func (u *Unpacker) ExtractForMemory(pkg *core.ContextPackage) MemoryProjection {
	if pkg == nil {
		return MemoryProjection{ShortTerm: []string{}, MidTerm: map[string]any{}, LongTermRefs: []string{}, Timestamp: u.opts.Clock()}
	}
	return MemoryProjection{
		ShortTerm:    core.CloneStrings(pkg.ShortTermContext),
		MidTerm:      core.CloneMap(pkg.MidTermContext),
		LongTermRefs: core.CloneStrings(pkg.LongTermReferences),
		Task:         pkg.TaskDescription,
		Timestamp:    u.opts.Clock(),
	}
}

func (u *Unpacker) resolve(p *core.ContextPackage) *UnpackedContext {
	u.logger.Debug("Context package unpacked", "context_package_id", p.PackageID, "schema_version", p.SchemaVersion)
	return &UnpackedContext{
		PackageID:          p.PackageID,
		TaskDescription:    p.TaskDescription,
		Constraints:        p.Constraints,
		RelevantKnowledge:  p.RelevantKnowledge,
		InputData:          p.InputData,
		ShortTermContext:   p.ShortTermContext,
		MidTermContext:     p.MidTermContext,
		LongTermReferences: p.LongTermReferences,
		PromptVersion:      p.PromptVersion,
		SchemaVersion:      p.SchemaVersion,
		ParentAgentID:      p.ParentAgentID,
		TargetAgentID:      p.TargetAgentID,
		Priority:           p.Priority,
		MaxTokens:          p.MaxTokens,
		UnpackedAt:         u.opts.Clock(),
	}
}
