// Package analysis defines the shared data model for one build-failure
// analysis: the mutable state threaded through the pipeline, the error
// classification taxonomy, fix candidates, and the terminal artifacts
// (DebuggingBrief or Failure).
package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status tracks which phase an analysis instance is in.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTriaging     Status = "triaging"
	StatusResearching  Status = "researching"
	StatusSynthesizing Status = "synthesizing"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// statusRank orders the forward progression. Failed is reachable from any
// non-terminal state and is handled separately in Advance.
var statusRank = map[Status]int{
	StatusPending:      0,
	StatusTriaging:     1,
	StatusResearching:  2,
	StatusSynthesizing: 3,
	StatusComplete:     4,
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Severity is the triage urgency assessment.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a free-form severity string onto the four levels.
// Anything unrecognized (including empty) becomes medium: severity only
// affects presentation ordering, so a conservative default is safe.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// CategoryUnknown is the reserved bucket for anything outside the vocabulary.
const CategoryUnknown = "unknown"

// categoryVocabulary is the fixed set of refined error categories the
// reasoning service is asked to choose from.
var categoryVocabulary = map[string]bool{
	"missing_package":         true,
	"version_conflict":        true,
	"incompatible_dependency": true,
	"syntax_error":            true,
	"type_error":              true,
	"import_error":            true,
	"assertion_failure":       true,
	"test_timeout":            true,
	"fixture_error":           true,
	"missing_env_var":         true,
	"invalid_config":          true,
	"missing_file":            true,
	"network_error":           true,
	"permission_denied":       true,
	"resource_limit":          true,
	CategoryUnknown:           true,
}

// CategoryVocabulary returns the vocabulary in sorted order, for prompts.
func CategoryVocabulary() []string {
	out := make([]string, 0, len(categoryVocabulary))
	for c := range categoryVocabulary {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CanonicalCategory normalizes a category label. Out-of-vocabulary labels are
// coerced to CategoryUnknown rather than rejected.
func CanonicalCategory(s string) string {
	c := strings.ToLower(strings.TrimSpace(s))
	c = strings.ReplaceAll(c, " ", "_")
	c = strings.ReplaceAll(c, "-", "_")
	if categoryVocabulary[c] {
		return c
	}
	return CategoryUnknown
}

// Classification is the triage stage's structured diagnosis of the failure.
type Classification struct {
	ErrorType         string   `json:"error_type"`
	Category          string   `json:"category"`
	Severity          Severity `json:"severity"`
	Message           string   `json:"message"`
	AffectedResources []string `json:"affected_resources,omitempty"`
}

// FixCandidate is one proposed remediation with its confidence bookkeeping.
type FixCandidate struct {
	Title       string   `json:"title"`
	Confidence  float64  `json:"confidence"`
	Rationale   string   `json:"rationale"`
	Steps       []string `json:"steps,omitempty"`
	CodeExample string   `json:"code_example,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// ClampConfidence forces a confidence value into [0,1]. Malformed values are
// clamped to the nearest bound instead of dropped.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SortCandidates orders candidates by descending confidence. The sort is
// stable so ties keep their generation order.
func SortCandidates(cs []FixCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Confidence > cs[j].Confidence
	})
}

// StageOutcome is one append-only audit record of a stage attempt sequence.
type StageOutcome struct {
	Stage       string    `json:"stage"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Succeeded   bool      `json:"succeeded"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	RetryCount  int       `json:"retry_count"`
}

// State is the single mutable record threaded through one analysis instance.
// Only the pipeline runner mutates it; stages receive inputs and return
// results.
type State struct {
	ID             string          `json:"id"`
	SourceLog      string          `json:"source_log"`
	Classification *Classification `json:"classification,omitempty"`
	FixCandidates  []FixCandidate  `json:"fix_candidates,omitempty"`
	History        []StageOutcome  `json:"history"`
	Status         Status          `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
}

// NewState creates a fresh Pending state for one normalized log.
func NewState(normalizedLog string) *State {
	return &State{
		ID:        uuid.NewString(),
		SourceLog: normalizedLog,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
}

// Advance moves the state forward. Transitions only run forward through
// pending → triaging → researching → synthesizing → complete; any
// non-terminal state may transition to failed.
func (s *State) Advance(next Status) error {
	if s.Status.Terminal() {
		return fmt.Errorf("analysis %s is terminal (%s), cannot advance to %s", s.ID, s.Status, next)
	}
	if next == StatusFailed {
		s.Status = StatusFailed
		return nil
	}
	cur, ok := statusRank[s.Status]
	if !ok {
		return fmt.Errorf("analysis %s has unknown status %q", s.ID, s.Status)
	}
	nxt, ok := statusRank[next]
	if !ok {
		return fmt.Errorf("invalid target status %q", next)
	}
	if nxt != cur+1 {
		return fmt.Errorf("illegal transition %s -> %s", s.Status, next)
	}
	s.Status = next
	return nil
}

// Record appends a stage outcome to the audit trail.
func (s *State) Record(o StageOutcome) {
	s.History = append(s.History, o)
}

// Snapshot returns a copy of the state safe to hand out in a Failure record.
func (s *State) Snapshot() *State {
	cp := *s
	if s.Classification != nil {
		cls := *s.Classification
		cp.Classification = &cls
	}
	cp.FixCandidates = append([]FixCandidate(nil), s.FixCandidates...)
	cp.History = append([]StageOutcome(nil), s.History...)
	return &cp
}
