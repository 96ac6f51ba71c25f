// Package memory contains concrete MemoryStore implementations. The store
// interface and SearchResult type reside in the core package; depend on
// core.MemoryStore in your code and select an implementation at wiring time.
//
// A memory store holds two tiers per session: mid-term key/value state that
// result processing merges into (Put) or overwrites (Replace), and long-term
// snippets addressed by id (Store / Search / Delete).
package memory
