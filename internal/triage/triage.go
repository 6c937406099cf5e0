// Package triage classifies a normalized build log into a structured error
// diagnosis via one reasoning-service request.
package triage

import (
	"context"
	"fmt"
	"strings"

	"debrief/internal/analysis"
	"debrief/internal/logging"
	"debrief/internal/reasoning"
)

const systemPrompt = `You are a CI failure triage analyst. You classify build and test failures from log excerpts. Respond with strict JSON only, no prose, no markdown fences.`

const promptTemplate = `Analyze this CI build log excerpt and classify the failure.

Log excerpt:
---
%s
---

Respond with a JSON object with exactly these fields:
{
  "error_type": "the specific error name, e.g. ModuleNotFoundError, SyntaxError, TS2345",
  "category": "one of: %s",
  "severity": "one of: low, medium, high, critical",
  "message": "one-sentence description of what failed",
  "affected_resources": ["files, packages or services involved"]
}`

// insufficientLogPreamble routes empty input through triage instead of
// raising: the service is asked to say so, and the result is an unknown
// classification rather than an error.
const insufficientLogPreamble = "(no log content was captured for this build; classify as insufficient log data)"

// payload is the raw shape returned by the reasoning service, before
// coercion into the vocabulary.
type payload struct {
	ErrorType         string   `json:"error_type"`
	Category          string   `json:"category"`
	Severity          string   `json:"severity"`
	Message           string   `json:"message"`
	AffectedResources []string `json:"affected_resources"`
}

// Stage performs error classification.
type Stage struct {
	reasoner reasoning.Client
}

// New creates a triage stage.
func New(r reasoning.Client) *Stage {
	return &Stage{reasoner: r}
}

// Classify produces a coerced classification for one normalized log excerpt.
// Out-of-vocabulary categories become unknown and invalid severities become
// medium; only service-level failures surface as errors.
func (s *Stage) Classify(ctx context.Context, normalizedLog string) (*analysis.Classification, error) {
	log := normalizedLog
	if strings.TrimSpace(log) == "" {
		log = insufficientLogPreamble
	}

	prompt := fmt.Sprintf(promptTemplate, log, strings.Join(analysis.CategoryVocabulary(), ", "))

	var p payload
	if err := reasoning.CallStructured(ctx, s.reasoner, systemPrompt, prompt, &p); err != nil {
		return nil, fmt.Errorf("triage classification: %w", err)
	}

	cls := &analysis.Classification{
		ErrorType:         strings.TrimSpace(p.ErrorType),
		Category:          analysis.CanonicalCategory(p.Category),
		Severity:          analysis.ParseSeverity(p.Severity),
		Message:           strings.TrimSpace(p.Message),
		AffectedResources: p.AffectedResources,
	}
	if cls.ErrorType == "" {
		cls.ErrorType = "UnknownError"
	}
	if cls.Message == "" {
		cls.Message = "no failure description available"
	}

	logging.Get(logging.CategoryTriage).Info("classified: type=%s category=%s severity=%s", cls.ErrorType, cls.Category, cls.Severity)
	return cls, nil
}
