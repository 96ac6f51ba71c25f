// Package compress enforces a token budget on context packages. Compression
// never mutates its input and never fails: when even the minimal package does
// not fit, the best-effort result is returned and the overrun is reported.
package compress

import (
	"sort"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Strategy selects how an oversized package is reduced.
type Strategy string

const (
	// StrategyTruncate drops the oldest short-term entries first.
	StrategyTruncate Strategy = "truncate"
	// StrategyPriority caps constraints and shrinks auxiliary knowledge
	// before touching conversation history.
	StrategyPriority Strategy = "priority"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool { return s == StrategyTruncate || s == StrategyPriority }

const minTaskRunes = 64

// Options configure a Compressor.
type Options struct {
	Strategy Strategy
	// MaxConstraints is the number of constraints kept by StrategyPriority.
	// Zero fields fall back to the defaults of New.
	MaxConstraints int
	// MaxValueRunes bounds string knowledge values under StrategyPriority.
	MaxValueRunes int
	CharsPerToken int
	Logger        logging.Logger
}

// Report describes one compression pass.
type Report struct {
	Strategy           Strategy `json:"strategy"`
	OriginalTokens     int      `json:"original_tokens"`
	CompressedTokens   int      `json:"compressed_tokens"`
	CompressionRatio   float64  `json:"compression_ratio"`
	Budget             int      `json:"budget"`
	WithinBudget       bool     `json:"within_budget"`
	DroppedShortTerm   int      `json:"dropped_short_term"`
	DroppedConstraints int      `json:"dropped_constraints"`
	TrimmedFields      []string `json:"trimmed_fields,omitempty"`
}

// Compressor reduces context packages to their token budget.
type Compressor struct {
	opts   Options
	logger logging.Logger
}

// New creates a Compressor using StrategyTruncate unless configured otherwise.
func New(optFns ...func(o *Options)) *Compressor {
	opts := Options{
		Strategy:       StrategyTruncate,
		MaxConstraints: 5,
		MaxValueRunes:  256,
		CharsPerToken:  defaultCharsPerToken,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if !opts.Strategy.Valid() {
		opts.Strategy = StrategyTruncate
	}
	if opts.MaxConstraints <= 0 {
		opts.MaxConstraints = 5
	}
	if opts.MaxValueRunes <= 0 {
		opts.MaxValueRunes = 256
	}
	if opts.CharsPerToken <= 0 {
		opts.CharsPerToken = defaultCharsPerToken
	}
	return &Compressor{opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Strategy returns the configured strategy.
func (c *Compressor) Strategy() Strategy { return c.opts.Strategy }

// Compress returns a package that fits the budget of pkg where possible.
func (c *Compressor) Compress(pkg *core.ContextPackage) *core.ContextPackage {
	out, _ := c.CompressWithReport(pkg)
	return out
}

// CompressWithReport compresses pkg and reports token counts before and after.
// Packages without a budget, or already within it, come back as a deep copy.
func (c *Compressor) CompressWithReport(pkg *core.ContextPackage) (*core.ContextPackage, Report) {
	if pkg == nil {
		return nil, Report{Strategy: c.opts.Strategy, CompressionRatio: 1, Budget: -1, WithinBudget: true}
	}

	out := pkg.Clone()
	original := c.EstimatePackage(pkg)
	rep := Report{
		Strategy:       c.opts.Strategy,
		OriginalTokens: original,
		Budget:         pkg.Budget(),
	}

	if !pkg.HasBudget() || original <= rep.Budget {
		rep.CompressedTokens = original
		rep.CompressionRatio = 1
		rep.WithinBudget = true
		return out, rep
	}

	switch c.opts.Strategy {
	case StrategyPriority:
		c.applyPriority(out, &rep)
	default:
		c.applyTruncate(out, &rep)
	}

	rep.CompressedTokens = c.EstimatePackage(out)
	rep.WithinBudget = rep.CompressedTokens <= rep.Budget
	if original > 0 {
		rep.CompressionRatio = float64(rep.CompressedTokens) / float64(original)
	}

	logging.LogCompression(c.logger, out.PackageID, string(rep.Strategy), rep.OriginalTokens, rep.CompressedTokens, rep.Budget, rep.WithinBudget)
	if !rep.WithinBudget {
		c.logger.Debug("Compression trimmed fields", "context_package_id", out.PackageID, "trimmed_fields", rep.TrimmedFields)
	}
	return out, rep
}

func (c *Compressor) over(p *core.ContextPackage) bool {
	return c.EstimatePackage(p) > p.Budget()
}

func (r *Report) trimmed(field string) {
	for _, f := range r.TrimmedFields {
		if f == field {
			return
		}
	}
	r.TrimmedFields = append(r.TrimmedFields, field)
}

// applyTruncate removes the oldest short-term entries until the package fits,
// then clears auxiliary fields.
func (c *Compressor) applyTruncate(p *core.ContextPackage, rep *Report) {
	c.dropOldestShortTerm(p, rep)

	if c.over(p) && len(p.RelevantKnowledge) > 0 {
		p.RelevantKnowledge = core.Values{}
		rep.trimmed("relevant_knowledge")
	}
	if c.over(p) && len(p.MidTermContext) > 0 {
		p.MidTermContext = map[string]any{}
		rep.trimmed("mid_term_context")
	}
	if c.over(p) && len(p.LongTermReferences) > 0 {
		p.LongTermReferences = []string{}
		rep.trimmed("long_term_references")
	}
	for c.over(p) && len(p.Constraints) > 0 {
		p.Constraints = p.Constraints[:len(p.Constraints)-1]
		rep.DroppedConstraints++
		rep.trimmed("constraints")
	}
}

// applyPriority keeps what a sub-agent needs most: task, input, the first
// constraints and recent history. Auxiliary knowledge is reduced first.
func (c *Compressor) applyPriority(p *core.ContextPackage, rep *Report) {
	if n := len(p.Constraints); n > c.opts.MaxConstraints {
		// Insertion order decides which constraints survive.
		p.Constraints = p.Constraints[:c.opts.MaxConstraints]
		rep.DroppedConstraints = n - c.opts.MaxConstraints
		rep.trimmed("constraints")
	}

	if c.over(p) {
		for _, k := range p.RelevantKnowledge.Keys() {
			s, ok := p.RelevantKnowledge[k].Str()
			if !ok {
				continue
			}
			if short, cut := truncateRunes(s, c.opts.MaxValueRunes); cut {
				p.RelevantKnowledge[k] = core.StringValue(short)
				rep.trimmed("relevant_knowledge")
			}
		}
	}

	if c.over(p) && len(p.RelevantKnowledge) > 0 {
		keys := p.RelevantKnowledge.Keys()
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
		for _, k := range keys {
			if !c.over(p) {
				break
			}
			delete(p.RelevantKnowledge, k)
			rep.trimmed("relevant_knowledge")
		}
	}

	if c.over(p) && len(p.MidTermContext) > 0 {
		p.MidTermContext = map[string]any{}
		rep.trimmed("mid_term_context")
	}

	c.dropOldestShortTerm(p, rep)

	if c.over(p) && len(p.LongTermReferences) > 0 {
		p.LongTermReferences = []string{}
		rep.trimmed("long_term_references")
	}

	for c.over(p) {
		short, cut := truncateRunes(p.TaskDescription, halfRunes(p.TaskDescription))
		if !cut {
			break
		}
		p.TaskDescription = short
		rep.trimmed("task_description")
	}
}

func (c *Compressor) dropOldestShortTerm(p *core.ContextPackage, rep *Report) {
	for c.over(p) && len(p.ShortTermContext) > 0 {
		p.ShortTermContext = p.ShortTermContext[1:]
		rep.DroppedShortTerm++
		rep.trimmed("short_term_context")
	}
	// Reslicing keeps the dropped prefix reachable from the backing array.
	p.ShortTermContext = core.CloneStrings(p.ShortTermContext)
}

func halfRunes(s string) int {
	n := len([]rune(s))
	half := (n + 1) / 2
	if half < minTaskRunes {
		half = minTaskRunes
	}
	return half
}

// truncateRunes shortens s to at most n runes. It reports whether s was cut.
func truncateRunes(s string, n int) (string, bool) {
	if n <= 0 {
		return s, false
	}
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}
