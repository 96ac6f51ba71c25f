package testutil

import (
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// PackageBuilder provides a fluent helper for constructing context packages
// in tests. Defaults: fresh package id, priority 5, current schema version.
type PackageBuilder struct {
	pkg core.ContextPackage
}

// NewPackageBuilder creates a builder for task.
func NewPackageBuilder(task string) *PackageBuilder {
	return &PackageBuilder{pkg: core.ContextPackage{
		PackageID:         core.NewPackageID(),
		TaskDescription:   task,
		RelevantKnowledge: core.Values{},
		InputData:         map[string]any{},
		MidTermContext:    map[string]any{},
		PromptVersion:     core.DefaultPromptVersion,
		SchemaVersion:     core.CurrentSchemaVersion,
		Priority:          5,
	}}
}

// ID overrides the generated package id (chainable).
func (b *PackageBuilder) ID(id string) *PackageBuilder { b.pkg.PackageID = id; return b }

// Constraint appends constraints (chainable).
func (b *PackageBuilder) Constraint(c ...string) *PackageBuilder {
	b.pkg.Constraints = append(b.pkg.Constraints, c...)
	return b
}

// Knowledge sets one relevant-knowledge value (chainable).
func (b *PackageBuilder) Knowledge(key string, v core.Value) *PackageBuilder {
	b.pkg.RelevantKnowledge[key] = v
	return b
}

// Input sets one input_data key (chainable).
func (b *PackageBuilder) Input(key string, value any) *PackageBuilder {
	b.pkg.InputData[key] = value
	return b
}

// ShortTerm appends short-term context entries (chainable).
func (b *PackageBuilder) ShortTerm(entries ...string) *PackageBuilder {
	b.pkg.ShortTermContext = append(b.pkg.ShortTermContext, entries...)
	return b
}

// Messages appends n short-term entries msg_0..msg_{n-1} (chainable).
func (b *PackageBuilder) Messages(n int) *PackageBuilder {
	for i := 0; i < n; i++ {
		b.pkg.ShortTermContext = append(b.pkg.ShortTermContext, fmt.Sprintf("msg_%d", i))
	}
	return b
}

// MidTerm sets one mid-term context key (chainable).
func (b *PackageBuilder) MidTerm(key string, value any) *PackageBuilder {
	b.pkg.MidTermContext[key] = value
	return b
}

// References appends long-term references (chainable).
func (b *PackageBuilder) References(refs ...string) *PackageBuilder {
	b.pkg.LongTermReferences = append(b.pkg.LongTermReferences, refs...)
	return b
}

// Route sets parent and target agent ids (chainable).
func (b *PackageBuilder) Route(parent, target string) *PackageBuilder {
	b.pkg.ParentAgentID = parent
	b.pkg.TargetAgentID = target
	return b
}

// Priority sets the priority, valid or not (chainable).
func (b *PackageBuilder) Priority(p int) *PackageBuilder { b.pkg.Priority = p; return b }

// MaxTokens sets the token budget (chainable).
func (b *PackageBuilder) MaxTokens(n int) *PackageBuilder { b.pkg.MaxTokens = &n; return b }

// Build returns a copy of the configured package.
func (b *PackageBuilder) Build() *core.ContextPackage { return b.pkg.Clone() }
