// Package packer builds validated, optionally compressed context packages
// from a task description and the parent agent's memory tiers.
package packer

import (
	"time"

	"github.com/hupe1980/agentrelay/compress"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/schema"
)

// Options configure a Packer.
type Options struct {
	// PromptVersion is stamped on packages that do not override it.
	PromptVersion string
	// DefaultPriority applies when PackOptions.Priority is nil.
	DefaultPriority int
	Validator       *schema.Validator
	Compressor      *compress.Compressor
	// AutoCompress runs the compressor on packages that carry a budget.
	AutoCompress bool
	Logger       logging.Logger
}

// PackOptions carry the optional fields of a single package.
type PackOptions struct {
	Constraints        []string
	RelevantKnowledge  map[string]any
	InputData          map[string]any
	ShortTermContext   []string
	MidTermContext     map[string]any
	LongTermReferences []string
	PromptVersion      string
	ParentAgentID      string
	TargetAgentID      string
	Priority           *int
	MaxTokens          *int
}

// Packer assembles context packages.
type Packer struct {
	opts   Options
	logger logging.Logger
}

// New creates a Packer. A default validator and a truncating compressor are
// created when none are injected.
func New(optFns ...func(o *Options)) *Packer {
	opts := Options{
		PromptVersion:   core.DefaultPromptVersion,
		DefaultPriority: 5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PromptVersion == "" {
		opts.PromptVersion = core.DefaultPromptVersion
	}
	if opts.Validator == nil {
		opts.Validator = schema.New()
	}
	if opts.Compressor == nil {
		opts.Compressor = compress.New(func(o *compress.Options) { o.Logger = opts.Logger })
	}
	return &Packer{opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Pack builds a package with a fresh id. Invalid input yields a
// *core.ValidationError naming the offending fields.
func (p *Packer) Pack(taskDescription string, optFns ...func(o *PackOptions)) (*core.ContextPackage, error) {
	var po PackOptions
	for _, fn := range optFns {
		fn(&po)
	}

	knowledge, err := core.ValuesFromMap(po.RelevantKnowledge)
	if err != nil {
		return nil, core.NewValidationError("relevant_knowledge", err.Error())
	}
	input, err := core.NormalizeMap(po.InputData)
	if err != nil {
		return nil, core.NewValidationError("input_data", err.Error())
	}
	midTerm, err := core.NormalizeMap(po.MidTermContext)
	if err != nil {
		return nil, core.NewValidationError("mid_term_context", err.Error())
	}

	priority := p.opts.DefaultPriority
	if po.Priority != nil {
		priority = *po.Priority
	}
	promptVersion := p.opts.PromptVersion
	if po.PromptVersion != "" {
		promptVersion = po.PromptVersion
	}

	pkg := &core.ContextPackage{
		PackageID:          core.NewPackageID(),
		TaskDescription:    taskDescription,
		Constraints:        po.Constraints,
		RelevantKnowledge:  knowledge,
		InputData:          input,
		ShortTermContext:   po.ShortTermContext,
		MidTermContext:     midTerm,
		LongTermReferences: po.LongTermReferences,
		PromptVersion:      promptVersion,
		ParentAgentID:      po.ParentAgentID,
		TargetAgentID:      po.TargetAgentID,
		Priority:           priority,
		MaxTokens:          po.MaxTokens,
		SchemaVersion:      core.CurrentSchemaVersion,
		CreatedAt:          time.Now().UTC(),
	}
	// Clone detaches the package from caller owned slices and maps.
	pkg = pkg.Clone()

	if res := p.opts.Validator.ValidatePackage(pkg); !res.Valid {
		p.logger.Warn("Context package rejected", "context_package_id", pkg.PackageID, "fields", res.Fields)
		return nil, res.Err()
	}

	if p.opts.AutoCompress && pkg.HasBudget() {
		pkg = p.opts.Compressor.Compress(pkg)
	}

	p.logger.Debug("Context package packed",
		"context_package_id", pkg.PackageID,
		"priority", pkg.Priority,
		"short_term", len(pkg.ShortTermContext),
		"constraints", len(pkg.Constraints),
	)
	return pkg, nil
}
