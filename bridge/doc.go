// Package bridge is the sub-agent side of the exchange. It injects a
// context package into a sub-agent (flat config plus system prompt), loads
// the package into working memory, tracks one execution through its state
// machine and builds the ResultPackage that travels back to the parent.
//
// Execution lifecycle:
//
//	created -> executing -> completed | failed
//
// Log lines accumulate in any state; the terminal transition appends one
// summary line and freezes the result. Run drives the lifecycle around a
// Worker, which is the only suspension point of the protocol.
package bridge
