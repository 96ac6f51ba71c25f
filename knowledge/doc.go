// Package knowledge contains core.KnowledgeStore implementations. Knowledge
// entries are the durable facts, insights and conclusions the result pipeline
// derives from sub-agent results. The in-memory store lives here; a SQLite
// backed store lives in the sqlite sub-package.
package knowledge
