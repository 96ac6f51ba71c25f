package core

// SearchResult represents a retrieved long-term memory snippet with a
// relevance score and arbitrary metadata.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}
