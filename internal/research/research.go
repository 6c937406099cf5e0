// Package research derives remediation candidates for a classified failure.
// It fans deterministic queries out to the search service, then distills the
// gathered evidence and the classification into ranked fix candidates through
// the reasoning service. The search service is strictly best-effort: an
// unreachable service or zero hits degrades to general-knowledge candidates,
// never to a stage failure.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"debrief/internal/analysis"
	"debrief/internal/logging"
	"debrief/internal/normalize"
	"debrief/internal/reasoning"
	"debrief/internal/search"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxCandidates bounds the number of fixes per brief.
	DefaultMaxCandidates = 3

	resultsPerQuery = 3
	thinSnippetLen  = 120

	// maxContextFiles and contextExcerptBytes bound the source context pulled
	// for affected resources.
	maxContextFiles     = 2
	contextExcerptBytes = 2000

	// searchIndependentPrefix marks rationales produced without search
	// evidence, so readers can tell grounded advice from general knowledge.
	searchIndependentPrefix = "search-independent: "
)

const systemPrompt = `You are a CI failure remediation researcher. You propose concrete fixes for classified build failures. Respond with strict JSON only.`

const promptTemplate = `A CI build failed with this classification:
- error type: %s
- category: %s
- message: %s

Log excerpt:
---
%s
---

%s%s

Propose at most %d fix candidates, most likely first. Respond with a JSON object:
{
  "candidates": [
    {
      "title": "short imperative fix title",
      "confidence": 0.0,
      "rationale": "why this fix addresses the failure",
      "steps": ["concrete step"],
      "code_example": "optional shell or code snippet",
      "source": "URL of supporting evidence, empty if none"
    }
  ]
}`

const evidenceHeader = "Search evidence:\n"

const noEvidenceInstruction = `No search evidence is available. Answer from general knowledge of this error category and say so in each rationale.`

// flexFloat tolerates confidences encoded as numbers or numeric strings.
// Anything else decodes to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexFloat(n)
			return nil
		}
	}
	*f = 0
	return nil
}

type candidatePayload struct {
	Title       string    `json:"title"`
	Confidence  flexFloat `json:"confidence"`
	Rationale   string    `json:"rationale"`
	Steps       []string  `json:"steps"`
	CodeExample string    `json:"code_example"`
	Source      string    `json:"source"`
}

type payload struct {
	Candidates []candidatePayload `json:"candidates"`
}

// ContextProvider supplies source excerpts for affected resources, typically
// backed by the repository hosting the failed build. Errors skip the excerpt;
// the stage never fails on missing context.
type ContextProvider interface {
	FileExcerpt(ctx context.Context, path string, maxBytes int) (string, error)
}

// Stage performs fix candidate research.
type Stage struct {
	reasoner  reasoning.Client
	searcher  search.Client
	extractor *search.Extractor // optional snippet enrichment

	// MaxCandidates caps the number of fixes returned.
	MaxCandidates int
	// SourceContext optionally feeds excerpts of the affected files into the
	// distillation prompt.
	SourceContext ContextProvider
}

// New creates a research stage. extractor may be nil to disable page
// enrichment.
func New(r reasoning.Client, s search.Client, extractor *search.Extractor) *Stage {
	return &Stage{
		reasoner:      r,
		searcher:      s,
		extractor:     extractor,
		MaxCandidates: DefaultMaxCandidates,
	}
}

// BuildQueries derives the deterministic search queries for a classification.
func BuildQueries(cls *analysis.Classification) []string {
	msg := normalize.TrimToRuneBoundary(cls.Message, 120)
	queries := []string{
		strings.TrimSpace(cls.ErrorType + " " + msg),
		fmt.Sprintf("fix %s %s CI build", cls.ErrorType, strings.ReplaceAll(cls.Category, "_", " ")),
	}
	if len(cls.AffectedResources) > 0 {
		queries = append(queries, strings.TrimSpace(cls.ErrorType+" "+cls.AffectedResources[0]))
	}
	return queries
}

// Research produces at most MaxCandidates ranked fix candidates. Search
// failures are tolerated; only reasoning-service failures are returned.
func (s *Stage) Research(ctx context.Context, cls *analysis.Classification, logExcerpt string) ([]analysis.FixCandidate, error) {
	maxCandidates := s.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}

	results := s.gather(ctx, BuildQueries(cls))
	// Cancellation must not be silently degraded into a general-knowledge run.
	if err := ctx.Err(); err != nil {
		return nil, analysis.NewServiceError("search", analysis.ReasonCancelled, err)
	}

	evidence := formatEvidence(results)
	instruction := noEvidenceInstruction
	if evidence != "" {
		instruction = evidenceHeader + evidence
	}

	prompt := fmt.Sprintf(promptTemplate, cls.ErrorType, cls.Category, cls.Message, logExcerpt, s.gatherContext(ctx, cls), instruction, maxCandidates)

	var p payload
	if err := reasoning.CallStructured(ctx, s.reasoner, systemPrompt, prompt, &p); err != nil {
		return nil, fmt.Errorf("research distillation: %w", err)
	}

	candidates := make([]analysis.FixCandidate, 0, len(p.Candidates))
	for _, c := range p.Candidates {
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		rationale := strings.TrimSpace(c.Rationale)
		if len(results) == 0 && !strings.HasPrefix(rationale, searchIndependentPrefix) {
			rationale = searchIndependentPrefix + rationale
		}
		candidates = append(candidates, analysis.FixCandidate{
			Title:       strings.TrimSpace(c.Title),
			Confidence:  analysis.ClampConfidence(float64(c.Confidence)),
			Rationale:   rationale,
			Steps:       c.Steps,
			CodeExample: c.CodeExample,
			Source:      strings.TrimSpace(c.Source),
		})
	}

	analysis.SortCandidates(candidates)
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	logging.Get(logging.CategoryResearch).Info("research: %d search results, %d candidates", len(results), len(candidates))
	return candidates, nil
}

// gather fans the queries out concurrently and merges deduplicated results by
// descending score. Every per-query error is logged and dropped.
func (s *Stage) gather(ctx context.Context, queries []string) []search.Result {
	var mu sync.Mutex
	var all []search.Result

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		query := q
		g.Go(func() error {
			results, err := s.searcher.Search(gctx, query, resultsPerQuery)
			if err != nil {
				logging.Get(logging.CategoryResearch).Warn("search query %q failed: %v", query, err)
				return nil // best-effort
			}
			mu.Lock()
			all = append(all, results...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	seen := make(map[string]bool)
	merged := all[:0]
	for _, r := range all {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	s.enrich(ctx, merged)
	return merged
}

// gatherContext pulls bounded excerpts of the affected files for the prompt,
// best-effort. Returns an empty string when no provider is wired or nothing
// could be fetched.
func (s *Stage) gatherContext(ctx context.Context, cls *analysis.Classification) string {
	if s.SourceContext == nil || len(cls.AffectedResources) == 0 {
		return ""
	}
	var sb strings.Builder
	fetched := 0
	for _, path := range cls.AffectedResources {
		if fetched == maxContextFiles {
			break
		}
		excerpt, err := s.SourceContext.FileExcerpt(ctx, path, contextExcerptBytes)
		if err != nil {
			logging.Get(logging.CategoryResearch).Debug("source context skipped for %s: %v", path, err)
			continue
		}
		excerpt = strings.TrimSpace(excerpt)
		if excerpt == "" {
			continue
		}
		fmt.Fprintf(&sb, "--- %s ---\n%s\n", path, excerpt)
		fetched++
	}
	if sb.Len() == 0 {
		return ""
	}
	return "Source context from the affected files:\n" + sb.String() + "\n"
}

// enrich fetches page text for thin snippets, best-effort.
func (s *Stage) enrich(ctx context.Context, results []search.Result) {
	if s.extractor == nil {
		return
	}
	for i := range results {
		if len(results[i].Content) >= thinSnippetLen {
			continue
		}
		text, err := s.extractor.PageText(ctx, results[i].URL)
		if err != nil {
			logging.Get(logging.CategoryResearch).Debug("enrichment skipped for %s: %v", results[i].URL, err)
			continue
		}
		if len(text) > len(results[i].Content) {
			results[i].Content = text
		}
	}
}

func formatEvidence(results []search.Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s (%s, score %.2f)\n%s\n\n", i+1, r.Title, r.URL, r.Score, r.Content)
	}
	return sb.String()
}
