// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that packers, compressors, bridges and the result pipeline use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RelayLogger with component context and domain helpers
//   - LogCompression, LogPipelineStage and LogModelCall, which use the domain
//     helpers when the logger has them and plain key/value pairs otherwise
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	p := pipeline.New(func(o *pipeline.Options) { o.Logger = logger })
//
// Components never reach for a process wide logger; a nil logger is replaced
// with NoOpLogger at construction time.
package logging
