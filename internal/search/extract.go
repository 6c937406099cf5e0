package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"debrief/internal/logging"
	"debrief/internal/normalize"

	"golang.org/x/net/html"
)

const (
	fetchBodyLimit = 1 << 20 // 1MB
	fetchUserAgent = "debrief-research/1.0"
)

// Extractor fetches a result page and pulls its main text, used to enrich
// search results whose snippets are too thin to reason over.
type Extractor struct {
	httpClient *http.Client
	maxChars   int
}

// NewExtractor creates a page-text extractor.
func NewExtractor(timeout time.Duration, maxChars int) *Extractor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Extractor{
		httpClient: &http.Client{Timeout: timeout},
		maxChars:   maxChars,
	}
}

// PageText fetches url and returns a bounded plain-text extract of its main
// content. Failures are returned but callers treat them as a skipped
// enrichment, never a stage failure.
func (e *Extractor) PageText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}

	text := normalize.TrimToRuneBoundary(extractMainText(doc), e.maxChars)
	logging.Get(logging.CategorySearch).Debug("[Extractor] %s: %d chars", url, len(text))
	return text, nil
}

// extractMainText walks the DOM collecting text from content elements,
// skipping script/style/nav chrome.
func extractMainText(doc *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "header", "footer", "aside":
				return
			case "p", "li", "pre", "code", "h1", "h2", "h3":
				t := strings.TrimSpace(textContent(n))
				if t != "" {
					sb.WriteString(t)
					sb.WriteString("\n")
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return strings.TrimSpace(sb.String())
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
