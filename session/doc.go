// Package session houses concrete implementations of core.SessionStore and a
// core.ChannelBridge that surfaces execution summaries in a session's event
// history.
//
// The coordinator agent talks to its user through a session. When a
// sub-agent result has been processed, ChannelBridge appends an
// execution.summary event to that session so the conversation can show the
// outcome without knowing anything about the result pipeline.
package session
