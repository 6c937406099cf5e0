// Package synthesis turns a classification and ranked fix candidates into the
// final debugging narrative and the overall confidence score.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"debrief/internal/analysis"
	"debrief/internal/logging"
	"debrief/internal/reasoning"
)

const (
	// DefaultCandidateWeight and DefaultTriageWeight split overall confidence
	// between the best fix and the triage signal.
	DefaultCandidateWeight = 0.7
	DefaultTriageWeight    = 0.3
)

const systemPrompt = `You are a CI failure report writer. You write short, actionable debugging summaries for engineers. Plain text only.`

const promptTemplate = `Write a debugging summary (3-6 sentences) for this CI failure.

Classification:
- error type: %s
- category: %s
- severity: %s
- message: %s

Ranked fixes:
%s

Requirements:
- mention the error type "%s" literally
- name the top fix "%s" explicitly
- do not invent fixes beyond the list`

const noCandidatesTemplate = `Write a debugging summary (2-4 sentences) for this CI failure. No fix candidates were found.

Classification:
- error type: %s
- category: %s
- severity: %s
- message: %s

Requirements:
- mention the error type "%s" literally
- state that no specific fix could be identified`

// Stage performs narrative synthesis.
type Stage struct {
	reasoner reasoning.Client

	// CandidateWeight and TriageWeight tune the overall-confidence blend.
	CandidateWeight float64
	TriageWeight    float64
}

// New creates a synthesis stage with the default confidence blend.
func New(r reasoning.Client) *Stage {
	return &Stage{
		reasoner:        r,
		CandidateWeight: DefaultCandidateWeight,
		TriageWeight:    DefaultTriageWeight,
	}
}

// Overall computes the blended confidence: candidate weight on the best fix,
// triage weight on whether the category was recognized at all.
func (s *Stage) Overall(cls *analysis.Classification, candidates []analysis.FixCandidate) float64 {
	var top float64
	if len(candidates) > 0 {
		top = candidates[0].Confidence
	}
	triageProxy := 0.0
	if cls.Category != analysis.CategoryUnknown {
		triageProxy = 1.0
	}
	return analysis.ClampConfidence(s.CandidateWeight*top + s.TriageWeight*triageProxy)
}

// Synthesize produces the narrative summary. The post-conditions (error type
// and top fix mentioned literally) are checked and the request is regenerated
// once on violation; a second violation falls back to the deterministic
// template with a recorded warning. Service errors are returned for the
// caller's retry policy.
func (s *Stage) Synthesize(ctx context.Context, cls *analysis.Classification, candidates []analysis.FixCandidate) (summary string, warnings []string, err error) {
	prompt := s.buildPrompt(cls, candidates)

	for attempt := 0; attempt < 2; attempt++ {
		text, err := s.reasoner.CompleteWithSystem(ctx, systemPrompt, prompt)
		if err != nil {
			return "", nil, fmt.Errorf("synthesis narrative: %w", err)
		}
		text = strings.TrimSpace(text)
		if s.checkNarrative(text, cls, candidates) {
			if attempt > 0 {
				warnings = append(warnings, "narrative regenerated once to satisfy content checks")
			}
			return text, warnings, nil
		}
		logging.Get(logging.CategorySynthesis).Warn("narrative check failed on attempt %d", attempt+1)
	}

	warnings = append(warnings, "narrative fell back to deterministic template after failed content checks")
	return s.Fallback(cls, candidates), warnings, nil
}

// Fallback builds the deterministic narrative used when the service cannot
// produce an acceptable one. It always satisfies the content checks.
func (s *Stage) Fallback(cls *analysis.Classification, candidates []analysis.FixCandidate) string {
	if len(candidates) == 0 {
		return fmt.Sprintf("The build failed with %s (%s): %s. No specific fix could be identified; inspect the full log for more context.",
			cls.ErrorType, cls.Category, cls.Message)
	}
	top := candidates[0]
	return fmt.Sprintf("The build failed with %s (%s): %s. The most likely remediation is %q (confidence %.2f). %d candidate fix(es) are listed below in ranked order.",
		cls.ErrorType, cls.Category, cls.Message, top.Title, top.Confidence, len(candidates))
}

func (s *Stage) buildPrompt(cls *analysis.Classification, candidates []analysis.FixCandidate) string {
	if len(candidates) == 0 {
		return fmt.Sprintf(noCandidatesTemplate, cls.ErrorType, cls.Category, cls.Severity, cls.Message, cls.ErrorType)
	}
	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. %s (confidence %.2f): %s\n", i+1, c.Title, c.Confidence, c.Rationale)
	}
	return fmt.Sprintf(promptTemplate, cls.ErrorType, cls.Category, cls.Severity, cls.Message, list.String(), cls.ErrorType, candidates[0].Title)
}

// checkNarrative enforces the two content post-conditions.
func (s *Stage) checkNarrative(text string, cls *analysis.Classification, candidates []analysis.FixCandidate) bool {
	if text == "" {
		return false
	}
	if cls.ErrorType != "" && !strings.Contains(text, cls.ErrorType) {
		return false
	}
	if len(candidates) > 0 && !strings.Contains(strings.ToLower(text), strings.ToLower(candidates[0].Title)) {
		return false
	}
	return true
}
