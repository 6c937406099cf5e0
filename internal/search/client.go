// Package search provides the web-search service boundary: a relevance-ranked
// search client plus a page-text extractor for enriching thin snippets.
// Search is a best-effort collaborator: callers must tolerate zero results
// and unreachable service without failing the analysis.
package search

import "context"

// Result is one search hit with its relevance score.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Client defines the interface for search service providers.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
