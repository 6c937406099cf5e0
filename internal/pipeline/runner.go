// Package pipeline orchestrates one build-failure analysis: it owns the
// mutable analysis state, drives the triage, research and synthesis stages in
// order, and applies the retry, timeout and cancellation policy around every
// stage attempt. Every run terminates in exactly one of a DebuggingBrief or a
// Failure carrying the partial state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"debrief/internal/analysis"
	"debrief/internal/logging"
	"debrief/internal/normalize"
	"debrief/internal/reasoning"
	"debrief/internal/research"
	"debrief/internal/search"
	"debrief/internal/synthesis"
	"debrief/internal/triage"
)

const (
	// DefaultMaxRetries is the number of re-attempts after the first failure
	// of a stage's service call sequence.
	DefaultMaxRetries = 2
	// DefaultBackoffBase is the first retry delay; it doubles per attempt.
	DefaultBackoffBase = 500 * time.Millisecond
	// DefaultCallTimeout bounds each stage attempt.
	DefaultCallTimeout = 60 * time.Second
	// DefaultMaxInputBytes bounds the raw log accepted for analysis.
	DefaultMaxInputBytes = 4 << 20 // 4MB
)

// Options tune one analysis run. The zero value gets all defaults.
type Options struct {
	MaxCandidates int
	// MaxRetries caps re-attempts after the first failure of a stage. nil
	// means DefaultMaxRetries; an explicit zero makes every stage
	// single-attempt.
	MaxRetries        *int
	BackoffBase       time.Duration
	CallTimeout       time.Duration
	MaxInputBytes     int
	NormalizeMaxChars int

	// sleep is swapped in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) applyDefaults() {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = research.DefaultMaxCandidates
	}
	if o.MaxRetries == nil {
		n := DefaultMaxRetries
		o.MaxRetries = &n
	} else if *o.MaxRetries < 0 {
		zero := 0
		o.MaxRetries = &zero
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.MaxInputBytes <= 0 {
		o.MaxInputBytes = DefaultMaxInputBytes
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Runner drives analyses against a fixed pair of service clients. Stage
// objects are built per run so concurrent analyses never share state.
type Runner struct {
	reasoner      reasoning.Client
	searcher      search.Client
	extractor     *search.Extractor
	sourceContext research.ContextProvider
}

// New creates a runner. extractor may be nil to disable search result
// enrichment; sourceContext may be nil to disable affected-file excerpts in
// the research prompt.
func New(reasoner reasoning.Client, searcher search.Client, extractor *search.Extractor, sourceContext research.ContextProvider) *Runner {
	return &Runner{
		reasoner:      reasoner,
		searcher:      searcher,
		extractor:     extractor,
		sourceContext: sourceContext,
	}
}

// Run analyzes one raw build log. A non-nil error is always a
// *analysis.Failure; exactly one of the two return values is set.
func (r *Runner) Run(ctx context.Context, rawLog string, opts Options) (*analysis.Brief, error) {
	opts.applyDefaults()

	if len(rawLog) > opts.MaxInputBytes {
		return nil, &analysis.Failure{
			FailedStage: "normalize",
			Reason:      analysis.ReasonInputTooLarge,
			Detail:      fmt.Sprintf("raw log is %d bytes, limit is %d", len(rawLog), opts.MaxInputBytes),
		}
	}

	normalized := normalize.Normalize(rawLog, normalize.Options{MaxChars: opts.NormalizeMaxChars})
	state := analysis.NewState(normalized)
	plog := logging.WithAnalysisID(logging.CategoryPipeline, state.ID)
	plog.Info("analysis started: %d raw bytes, %d normalized chars", len(rawLog), len(normalized))
	logging.AuditStage(logging.AuditAnalysisStart, state.ID, "", "")

	triageStage := triage.New(r.reasoner)
	researchStage := research.New(r.reasoner, r.searcher, r.extractor)
	researchStage.MaxCandidates = opts.MaxCandidates
	researchStage.SourceContext = r.sourceContext
	synthesisStage := synthesis.New(r.reasoner)

	// Triage
	advance(state, analysis.StatusTriaging, plog)
	cls, outcome, err := runStage(ctx, state, "triage", opts, func(ctx context.Context) (*analysis.Classification, error) {
		return triageStage.Classify(ctx, state.SourceLog)
	})
	state.Record(outcome)
	if err != nil {
		return nil, r.fail(state, "triage", err, plog)
	}
	state.Classification = cls

	// Research
	advance(state, analysis.StatusResearching, plog)
	candidates, outcome, err := runStage(ctx, state, "research", opts, func(ctx context.Context) ([]analysis.FixCandidate, error) {
		return researchStage.Research(ctx, cls, state.SourceLog)
	})
	state.Record(outcome)
	if err != nil {
		return nil, r.fail(state, "research", err, plog)
	}
	state.FixCandidates = candidates

	// Synthesis. Unlike the earlier stages, exhausting retries here degrades
	// to the deterministic narrative: the classification and fixes are
	// already in hand and must not be discarded. Only cancellation fails.
	advance(state, analysis.StatusSynthesizing, plog)
	var warnings []string
	type synthResult struct {
		summary  string
		warnings []string
	}
	res, outcome, err := runStage(ctx, state, "synthesis", opts, func(ctx context.Context) (synthResult, error) {
		summary, w, err := synthesisStage.Synthesize(ctx, cls, candidates)
		return synthResult{summary: summary, warnings: w}, err
	})
	state.Record(outcome)
	if err != nil {
		if analysis.ReasonOf(err) == analysis.ReasonCancelled {
			return nil, r.fail(state, "synthesis", err, plog)
		}
		plog.Warn("synthesis degraded after exhausted retries: %v", err)
		res.summary = synthesisStage.Fallback(cls, candidates)
		res.warnings = append(res.warnings, "narrative fell back to deterministic template after service failures")
	}
	warnings = append(warnings, res.warnings...)

	advance(state, analysis.StatusComplete, plog)
	logging.AuditStage(logging.AuditAnalysisComplete, state.ID, "", "")

	brief := &analysis.Brief{
		AnalysisID:        state.ID,
		Classification:    *cls,
		FixCandidates:     candidates,
		Summary:           res.summary,
		OverallConfidence: synthesisStage.Overall(cls, candidates),
		NoFixesFound:      len(candidates) == 0,
		Warnings:          warnings,
		History:           state.History,
		GeneratedAt:       time.Now(),
		Elapsed:           time.Since(state.StartedAt),
	}
	plog.Info("analysis complete: %d candidates, overall confidence %.2f", len(candidates), brief.OverallConfidence)
	return brief, nil
}

// runStage executes one stage with per-attempt timeout and the retry policy:
// only ServiceUnavailable and Timeout are retried, MalformedResponse and
// Cancelled never are.
func runStage[T any](ctx context.Context, state *analysis.State, name string, opts Options, fn func(ctx context.Context) (T, error)) (T, analysis.StageOutcome, error) {
	outcome := analysis.StageOutcome{Stage: name, StartedAt: time.Now()}
	plog := logging.WithAnalysisID(logging.CategoryPipeline, state.ID)
	logging.AuditStage(logging.AuditStageStart, state.ID, name, "")

	maxRetries := *opts.MaxRetries
	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			outcome.RetryCount = attempt
			delay := opts.BackoffBase << uint(attempt-1)
			plog.Info("%s: retry %d/%d after %v", name, attempt, maxRetries, delay)
			logging.AuditStage(logging.AuditStageRetry, state.ID, name, lastErr.Error())
			if err := opts.sleep(ctx, delay); err != nil {
				lastErr = analysis.NewServiceError(name, analysis.ReasonCancelled, err)
				break
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			outcome.Succeeded = true
			outcome.FinishedAt = time.Now()
			logging.AuditStage(logging.AuditStageComplete, state.ID, name, "")
			return result, outcome, nil
		}
		lastErr = err

		reason := analysis.ReasonOf(err)
		// A per-attempt deadline is a Timeout; the parent being cancelled is
		// a Cancelled and ends the run immediately.
		if reason == analysis.ReasonCancelled && ctx.Err() == context.DeadlineExceeded {
			reason = analysis.ReasonTimeout
		}
		if ctx.Err() != nil {
			plog.Warn("%s: aborted: %v", name, err)
			break
		}
		if !reason.Retryable() {
			plog.Warn("%s: non-retryable failure: %v", name, err)
			break
		}
		plog.Warn("%s: attempt %d failed (%s): %v", name, attempt+1, reason, err)
	}

	outcome.FinishedAt = time.Now()
	outcome.ErrorDetail = lastErr.Error()
	logging.AuditStage(logging.AuditStageError, state.ID, name, lastErr.Error())
	return zero, outcome, lastErr
}

// advance applies a status transition. A rejection means the runner itself
// broke the state machine; the state is left untouched and the violation is
// logged instead of dropped.
func advance(state *analysis.State, next analysis.Status, plog *logging.AnalysisLogger) {
	if err := state.Advance(next); err != nil {
		plog.Error("state transition rejected: %v", err)
	}
}

// fail transitions the state to Failed and wraps the error as the terminal
// Failure artifact.
func (r *Runner) fail(state *analysis.State, stage string, err error, plog *logging.AnalysisLogger) *analysis.Failure {
	advance(state, analysis.StatusFailed, plog)
	reason := analysis.ReasonOf(err)
	plog.Error("analysis failed at %s: %s: %v", stage, reason, err)
	logging.AuditStage(logging.AuditAnalysisFailed, state.ID, stage, err.Error())
	return &analysis.Failure{
		FailedStage: stage,
		Reason:      reason,
		Detail:      err.Error(),
		Partial:     state.Snapshot(),
	}
}
