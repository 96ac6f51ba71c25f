// Package model defines the provider-agnostic abstraction sub-agents use to
// run a task through a language model, plus a MockModel for tests and
// examples.
//
// Providers (OpenAI, Anthropic) implement Model in sub-packages so the bridge
// and the rest of the protocol stay decoupled from vendor SDKs. Generation is
// channel based: providers emit optional partial chunks followed by one final
// Response; Collect drains both channels for callers that only need the
// final text.
package model
