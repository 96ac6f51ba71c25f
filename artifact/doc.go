// Package artifact contains concrete implementations of core.ArtifactStore.
//
// The result pipeline archives every processed ResultPackage as raw JSON in an
// artifact store, keyed by the originating context package id (the session)
// and the result id. Callers should depend on the core interface so durable
// backends can replace the in-memory store without touching calling code.
package artifact
