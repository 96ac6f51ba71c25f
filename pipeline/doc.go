// Package pipeline processes ResultPackages returned by sub-agents.
//
// Every Process call runs the same strictly ordered steps under one fresh
// tracking id:
//
//  1. record result_received
//  2. schema check (rejected results record processing_failed and stop)
//  3. completed results: mid-term memory update, then knowledge entries
//     derived from knowledge_updates
//  4. failed results: audit only, no knowledge writes
//  5. optional archive, event publish and channel push
//  6. record processing_completed
//
// Memory and knowledge failures are collected in ProcessingResult.Errors,
// failures of the optional collaborators in Warnings; neither aborts the
// remaining steps.
package pipeline
