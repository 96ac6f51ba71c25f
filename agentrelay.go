// Package agentrelay provides a high-level façade over the context exchange
// protocol spoken between a parent agent and the sub-agents it delegates to.
// Most applications interact with this package by:
//  1. Creating a Relay via New() or NewFromConfig() (optionally overriding
//     the default in-memory stores)
//  2. Packing a task and the parent's memory tiers into a context package
//  3. Running the package on a sub-agent (Delegate, or NewExecution for
//     manual lifecycle control)
//  4. Processing the returned result package back into memory, knowledge
//     and the audit trail
//
// The façade delegates to the packer, compress, bridge and pipeline packages
// while sharing one validator, logger and set of stores between them.
package agentrelay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/agentrelay/artifact"
	"github.com/hupe1980/agentrelay/audit"
	"github.com/hupe1980/agentrelay/bridge"
	"github.com/hupe1980/agentrelay/bus"
	"github.com/hupe1980/agentrelay/compress"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/knowledge"
	"github.com/hupe1980/agentrelay/knowledge/sqlite"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/packer"
	"github.com/hupe1980/agentrelay/pipeline"
	"github.com/hupe1980/agentrelay/schema"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/unpacker"
	"golang.org/x/sync/errgroup"
)

// Options configures the Relay instance.
type Options struct {
	// Packing
	PromptVersion   string
	DefaultPriority int
	AutoCompress    bool
	Compression     compress.Options

	// PromptTemplate overrides the sub-agent system prompt (text/template).
	PromptTemplate string

	// Processing
	UpdateStrategy core.UpdateStrategy
	SessionID      string
	Deduplicate    bool
	// DisableArchive skips storing raw results in the ArtifactStore.
	DisableArchive bool

	// MaxConcurrentProcessing bounds ProcessBatch. Zero or less means
	// unlimited.
	MaxConcurrentProcessing int

	// Validator is shared by every component. Defaults to the latest schema.
	Validator *schema.Validator

	// EventHistory caps the events retained by the default in-memory bus.
	// Zero or less keeps every event.
	EventHistory int

	// Stores (defaults to in-memory implementations if not provided). The
	// in-memory memory, knowledge, audit, session and artifact stores keep
	// every record for the life of the Relay, as does the deduplication
	// ledger. Long running processes should supply durable stores.
	MemoryStore    core.MemoryStore
	KnowledgeStore core.KnowledgeStore
	AuditLog       core.AuditLog
	EventBus       core.EventBus
	SessionStore   core.SessionStore
	ArtifactStore  core.ArtifactStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Relay is the high-level façade aggregating packer, compressor, unpacker,
// bridge and pipeline.
type Relay struct {
	opts       Options
	compressor *compress.Compressor
	packer     *packer.Packer
	unpacker   *unpacker.Unpacker
	bridge     *bridge.Bridge
	pipeline   *pipeline.Pipeline
	closers    []io.Closer
}

// New creates a new Relay with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Relay {
	opts := Options{
		PromptVersion:   core.DefaultPromptVersion,
		DefaultPriority: 5,
		Compression: compress.Options{
			Strategy:       compress.StrategyTruncate,
			MaxConstraints: 5,
			MaxValueRunes:  256,
			CharsPerToken:  4,
		},
		UpdateStrategy: core.UpdateIncremental,
		EventHistory:   1024,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Validator == nil {
		opts.Validator = schema.New()
	}
	if opts.MemoryStore == nil {
		opts.MemoryStore = memory.NewInMemoryStore()
	}
	if opts.KnowledgeStore == nil {
		opts.KnowledgeStore = knowledge.NewInMemoryStore()
	}
	if opts.AuditLog == nil {
		opts.AuditLog = audit.NewInMemoryLog()
	}
	if opts.EventBus == nil {
		opts.EventBus = bus.NewInMemoryBus(func(o *bus.InMemoryBusOptions) { o.MaxHistory = opts.EventHistory })
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.DisableArchive {
		opts.ArtifactStore = nil
	} else if opts.ArtifactStore == nil {
		opts.ArtifactStore = artifact.NewInMemoryStore()
	}

	compressor := compress.New(func(o *compress.Options) {
		*o = opts.Compression
		o.Logger = opts.Logger
	})

	u := unpacker.New(func(o *unpacker.Options) {
		o.Validator = opts.Validator
		o.Logger = opts.Logger
	})

	return &Relay{
		opts:       opts,
		compressor: compressor,
		packer: packer.New(func(o *packer.Options) {
			o.PromptVersion = opts.PromptVersion
			o.DefaultPriority = opts.DefaultPriority
			o.AutoCompress = opts.AutoCompress
			o.Validator = opts.Validator
			o.Compressor = compressor
			o.Logger = opts.Logger
		}),
		unpacker: u,
		bridge: bridge.New(func(o *bridge.Options) {
			o.Unpacker = u
			o.Validator = opts.Validator
			o.PromptTemplate = opts.PromptTemplate
			o.Logger = opts.Logger
		}),
		pipeline: pipeline.New(func(o *pipeline.Options) {
			o.MemoryStore = opts.MemoryStore
			o.KnowledgeStore = opts.KnowledgeStore
			o.AuditLog = opts.AuditLog
			o.EventBus = opts.EventBus
			o.ChannelBridge = session.NewChannelBridge(opts.SessionStore, opts.Logger)
			o.ArtifactStore = opts.ArtifactStore
			o.UpdateStrategy = opts.UpdateStrategy
			o.SessionID = opts.SessionID
			o.Deduplicate = opts.Deduplicate
			o.Validator = opts.Validator
			o.Logger = opts.Logger
		}),
	}
}

// NewFromConfig creates a Relay from a loaded configuration. A nil cfg uses
// config.Default(). optFns are applied after the configuration and may
// override any store. Call Close to release a file-backed knowledge store.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Relay, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewSlogLogger(level, cfg.Logging.Format, cfg.Logging.AddSource).WithComponent("agentrelay")

	var (
		store   core.KnowledgeStore
		closers []io.Closer
	)
	if cfg.Knowledge.Driver == config.DriverSQLite {
		s, err := sqlite.New(cfg.Knowledge.Path, func(o *sqlite.Options) { o.Logger = logger })
		if err != nil {
			return nil, fmt.Errorf("open knowledge store: %w", err)
		}
		store = s
		closers = append(closers, s)
	}

	r := New(func(o *Options) {
		o.PromptVersion = cfg.Packer.PromptVersion
		o.DefaultPriority = cfg.Packer.DefaultPriority
		o.AutoCompress = cfg.Packer.AutoCompress
		o.Compression = compress.Options{
			Strategy:       compress.Strategy(cfg.Compression.Strategy),
			MaxConstraints: cfg.Compression.MaxConstraints,
			MaxValueRunes:  cfg.Compression.MaxValueRunes,
			CharsPerToken:  cfg.Compression.CharsPerToken,
		}
		o.UpdateStrategy = core.UpdateStrategy(cfg.Pipeline.UpdateStrategy)
		o.SessionID = cfg.Pipeline.SessionID
		o.Deduplicate = cfg.Pipeline.Deduplicate
		o.DisableArchive = !cfg.Pipeline.ArchiveResults
		o.Validator = schema.New(func(so *schema.Options) {
			so.SchemaVersion = schema.Version(cfg.Packer.SchemaVersion)
		})
		o.KnowledgeStore = store
		o.Logger = logger

		for _, fn := range optFns {
			fn(o)
		}
	})
	r.closers = closers

	logger.Info("relay configured",
		"knowledge_driver", cfg.Knowledge.Driver,
		"compression", cfg.Compression.Strategy,
		"update_strategy", cfg.Pipeline.UpdateStrategy,
		"schema_version", cfg.Packer.SchemaVersion,
	)

	return r, nil
}

// Pack builds a validated context package for a sub-agent.
func (r *Relay) Pack(taskDescription string, optFns ...func(o *packer.PackOptions)) (*core.ContextPackage, error) {
	return r.packer.Pack(taskDescription, optFns...)
}

// Compress reduces pkg to its token budget without mutating it.
func (r *Relay) Compress(pkg *core.ContextPackage) (*core.ContextPackage, compress.Report) {
	return r.compressor.CompressWithReport(pkg)
}

// Unpack validates an incoming package and resolves its defaults.
func (r *Relay) Unpack(pkg *core.ContextPackage) (*unpacker.UnpackedContext, error) {
	return r.unpacker.Unpack(pkg)
}

// NewExecution injects pkg into agentID and returns an execution in the
// created state.
func (r *Relay) NewExecution(pkg *core.ContextPackage, agentID string) (*bridge.Execution, error) {
	return r.bridge.NewExecution(pkg, agentID)
}

// Delegate runs pkg on a sub-agent worker and processes the outcome. A
// cancelled run still processes the failed result and returns the context
// error alongside it.
func (r *Relay) Delegate(
	ctx context.Context,
	pkg *core.ContextPackage,
	agentID string,
	worker bridge.Worker,
) (*core.ResultPackage, *pipeline.ProcessingResult, error) {
	exec, err := r.bridge.NewExecution(pkg, agentID)
	if err != nil {
		return nil, nil, err
	}

	res, runErr := exec.Run(ctx, worker)
	if res == nil {
		return nil, nil, runErr
	}

	processed := r.pipeline.Process(context.WithoutCancel(ctx), res)
	return res, processed, runErr
}

// Process applies a result package to memory, knowledge and the audit trail.
func (r *Relay) Process(ctx context.Context, res *core.ResultPackage) *pipeline.ProcessingResult {
	return r.pipeline.Process(ctx, res)
}

// ProcessJSON applies a serialized result package.
func (r *Relay) ProcessJSON(ctx context.Context, data []byte) *pipeline.ProcessingResult {
	return r.pipeline.ProcessJSON(ctx, data)
}

// ProcessBatch processes results concurrently, bounded by
// MaxConcurrentProcessing. The returned slice is index-aligned with results;
// entries not started before ctx was cancelled are nil.
func (r *Relay) ProcessBatch(ctx context.Context, results []*core.ResultPackage) ([]*pipeline.ProcessingResult, error) {
	out := make([]*pipeline.ProcessingResult, len(results))

	g, gctx := errgroup.WithContext(ctx)
	if r.opts.MaxConcurrentProcessing > 0 {
		g.SetLimit(r.opts.MaxConcurrentProcessing)
	}

	for i, res := range results {
		i, res := i, res
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = r.pipeline.Process(gctx, res)
			return nil
		})
	}

	return out, g.Wait()
}

// AuditTrail returns the audit entries recorded for resultID.
func (r *Relay) AuditTrail(resultID string) []core.AuditEntry {
	return r.pipeline.GetAuditLog(resultID)
}

// Stats returns the pipeline counters.
func (r *Relay) Stats() pipeline.Snapshot { return r.pipeline.Stats() }

// KnowledgeStore returns the store knowledge entries are written to.
func (r *Relay) KnowledgeStore() core.KnowledgeStore { return r.opts.KnowledgeStore }

// MemoryStore returns the store mid-term updates are applied to.
func (r *Relay) MemoryStore() core.MemoryStore { return r.opts.MemoryStore }

// SessionStore returns the store execution summaries are pushed to.
func (r *Relay) SessionStore() core.SessionStore { return r.opts.SessionStore }

// EventBus returns the bus result events are published on.
func (r *Relay) EventBus() core.EventBus { return r.opts.EventBus }

// ArtifactStore returns the raw result archive, or nil when archiving is
// disabled.
func (r *Relay) ArtifactStore() core.ArtifactStore { return r.opts.ArtifactStore }

// Close releases stores opened by NewFromConfig.
func (r *Relay) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
