package analysis

import (
	"fmt"
	"time"
)

// Brief is the terminal success artifact of an analysis: the classification,
// the ranked fix candidates, and the synthesized narrative.
type Brief struct {
	AnalysisID        string         `json:"analysis_id"`
	Classification    Classification `json:"classification"`
	FixCandidates     []FixCandidate `json:"fix_candidates"`
	Summary           string         `json:"summary"`
	OverallConfidence float64        `json:"overall_confidence"`
	// NoFixesFound marks a structurally complete brief whose research stage
	// produced zero candidates.
	NoFixesFound bool `json:"no_fixes_found,omitempty"`
	// Warnings records degraded-path notes, e.g. a synthesis narrative that
	// fell back to the deterministic template.
	Warnings    []string       `json:"warnings,omitempty"`
	History     []StageOutcome `json:"history"`
	GeneratedAt time.Time      `json:"generated_at"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// TopCandidate returns the highest-confidence fix, or nil when none exist.
func (b *Brief) TopCandidate() *FixCandidate {
	if len(b.FixCandidates) == 0 {
		return nil
	}
	return &b.FixCandidates[0]
}

// Reason classifies why a service interaction or the analysis as a whole
// failed.
type Reason string

const (
	ReasonServiceUnavailable Reason = "service_unavailable"
	ReasonTimeout            Reason = "timeout"
	ReasonMalformedResponse  Reason = "malformed_response"
	ReasonInputTooLarge      Reason = "input_too_large"
	ReasonCancelled          Reason = "cancelled"
)

// Retryable reports whether a failure reason may be retried. Malformed
// responses are never retried: the service answered, it just answered badly.
func (r Reason) Retryable() bool {
	return r == ReasonServiceUnavailable || r == ReasonTimeout
}

// Failure is the terminal failure artifact. It satisfies error so the
// pipeline can return it directly, and it carries the partial state so
// callers can inspect how far the analysis got.
type Failure struct {
	FailedStage string `json:"failed_stage"`
	Reason      Reason `json:"reason"`
	Detail      string `json:"detail"`
	Partial     *State `json:"partial,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("analysis failed at %s stage: %s (%s)", f.FailedStage, f.Detail, f.Reason)
}
