// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer RelayLogger with contextual
// helpers and domain specific helpers for compression, result processing
// stages and model calls.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface used by every component.
// Arguments after msg are slog-style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// RelayLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. It is cheap to copy via With* methods.
type RelayLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
}

// LoggerConfig configures construction of a RelayLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true, CustomAttrs: map[string]any{}}
}

// NewLogger builds a RelayLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *RelayLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	ctx := make(map[string]any, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		ctx[k] = v
	}
	return &RelayLogger{logger: slog.New(handler), level: cfg.Level, context: ctx, component: cfg.Component}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *RelayLogger) clone() *RelayLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *RelayLogger) WithContext(key string, value any) *RelayLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (packer, compressor, pipeline, ...).
func (l *RelayLogger) WithComponent(c string) *RelayLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

func (l *RelayLogger) buildAttrs() []any {
	attrs := make([]any, 0, len(l.context)+1)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *RelayLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	all := append(l.buildAttrs(), args...)
	l.logger.Log(context.Background(), level, msg, all...)
}

// Debug logs at debug level.
func (l *RelayLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *RelayLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *RelayLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *RelayLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// DomainLogger is implemented by loggers with dedicated methods for relay
// events. The package level LogCompression, LogPipelineStage and LogModelCall
// prefer these methods and fall back to plain key/value logging otherwise.
type DomainLogger interface {
	Logger
	LogCompression(packageID, strategy string, original, compressed, budget int, withinBudget bool)
	LogPipelineStage(trackingID, resultID, stage string, dur time.Duration, err error)
	LogModelCall(model, provider string, tokens int, dur time.Duration, err error)
}

var _ DomainLogger = (*RelayLogger)(nil)

type record struct {
	level slog.Level
	msg   string
	attrs []slog.Attr
}

func (r record) args() []any {
	out := make([]any, 0, 2*len(r.attrs))
	for _, a := range r.attrs {
		out = append(out, a.Key, a.Value.Any())
	}
	return out
}

func compressionRecord(packageID, strategy string, original, compressed, budget int, withinBudget bool) record {
	r := record{level: slog.LevelInfo, msg: "Context compressed"}
	if !withinBudget {
		r.level = slog.LevelWarn
		r.msg = "Context exceeds budget after compression"
	}
	r.attrs = []slog.Attr{
		slog.String("context_package_id", packageID),
		slog.String("strategy", strategy),
		slog.Int("original_tokens", original),
		slog.Int("compressed_tokens", compressed),
		slog.Int("budget", budget),
	}
	return r
}

// Successful stages log at debug level; every stage is already in the audit log.
func stageRecord(trackingID, resultID, stage string, dur time.Duration, err error) record {
	r := record{level: slog.LevelDebug, msg: "Pipeline stage completed"}
	r.attrs = []slog.Attr{
		slog.String("tracking_id", trackingID),
		slog.String("result_id", resultID),
		slog.String("stage", stage),
		slog.Duration("duration", dur),
	}
	if err != nil {
		r.level = slog.LevelError
		r.msg = "Pipeline stage failed"
		r.attrs = append(r.attrs, slog.String("error", err.Error()))
	}
	return r
}

func modelCallRecord(model, provider string, tokens int, dur time.Duration, err error) record {
	r := record{level: slog.LevelInfo, msg: "Model call completed"}
	r.attrs = []slog.Attr{
		slog.String("model", model),
		slog.String("provider", provider),
		slog.Int("token_count", tokens),
		slog.Duration("duration", dur),
		slog.Bool("success", err == nil),
	}
	if err != nil {
		r.level = slog.LevelError
		r.msg = "Model call failed"
		r.attrs = append(r.attrs, slog.String("error", err.Error()))
	}
	return r
}

func (l *RelayLogger) emit(r record) {
	l.log(r.level, l.level <= levelOf(r.level), r.msg, r.args()...)
}

func levelOf(level slog.Level) LogLevel {
	switch {
	case level >= slog.LevelError:
		return LogLevelError
	case level >= slog.LevelWarn:
		return LogLevelWarn
	case level >= slog.LevelInfo:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}

// LogCompression records the outcome of a context compression pass. Results
// over budget log at warn level.
func (l *RelayLogger) LogCompression(packageID, strategy string, original, compressed, budget int, withinBudget bool) {
	l.emit(compressionRecord(packageID, strategy, original, compressed, budget, withinBudget))
}

// LogPipelineStage records one result processing stage.
func (l *RelayLogger) LogPipelineStage(trackingID, resultID, stage string, dur time.Duration, err error) {
	l.emit(stageRecord(trackingID, resultID, stage, dur, err))
}

// LogModelCall records model call latency, token usage and success.
func (l *RelayLogger) LogModelCall(model, provider string, tokens int, dur time.Duration, err error) {
	l.emit(modelCallRecord(model, provider, tokens, dur, err))
}

// LogCompression reports a compression pass through l.
func LogCompression(l Logger, packageID, strategy string, original, compressed, budget int, withinBudget bool) {
	if dl, ok := l.(DomainLogger); ok {
		dl.LogCompression(packageID, strategy, original, compressed, budget, withinBudget)
		return
	}
	logAt(l, compressionRecord(packageID, strategy, original, compressed, budget, withinBudget))
}

// LogPipelineStage reports a pipeline stage through l.
func LogPipelineStage(l Logger, trackingID, resultID, stage string, dur time.Duration, err error) {
	if dl, ok := l.(DomainLogger); ok {
		dl.LogPipelineStage(trackingID, resultID, stage, dur, err)
		return
	}
	logAt(l, stageRecord(trackingID, resultID, stage, dur, err))
}

// LogModelCall reports a model call through l.
func LogModelCall(l Logger, model, provider string, tokens int, dur time.Duration, err error) {
	if dl, ok := l.(DomainLogger); ok {
		dl.LogModelCall(model, provider, tokens, dur, err)
		return
	}
	logAt(l, modelCallRecord(model, provider, tokens, dur, err))
}

func logAt(l Logger, r record) {
	if l == nil {
		return
	}
	switch levelOf(r.level) {
	case LogLevelDebug:
		l.Debug(r.msg, r.args()...)
	case LogLevelInfo:
		l.Info(r.msg, r.args()...)
	case LogLevelWarn:
		l.Warn(r.msg, r.args()...)
	default:
		l.Error(r.msg, r.args()...)
	}
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new RelayLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *RelayLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
