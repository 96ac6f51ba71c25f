// Package core provides the foundational domain types and collaborator
// contracts of the agent context & result exchange protocol:
//
//   - ContextPackage (parent → sub-agent task envelope) and ResultPackage
//     (sub-agent → parent outcome envelope) with lossless JSON round-trips
//   - Value / Values, a tagged value type for open extension points
//   - Typed errors (ValidationError, ParseError, InjectionError)
//   - Narrow store contracts (MemoryStore, KnowledgeStore, AuditLog,
//     ArtifactStore, SessionStore) and optional sinks (EventBus,
//     ChannelBridge)
//
// Implementation concerns (persistence, compression, processing) live in
// sibling packages so that custom backends can be plugged in without
// dependency cycles.
package core
