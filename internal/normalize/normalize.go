// Package normalize prepares raw CI log output for the reasoning stages:
// terminal escape stripping, timestamp removal, and bounded truncation.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars bounds the excerpt handed to the reasoning service.
	DefaultMaxChars = 10000
	// headShare is the fraction of the budget spent on the start of the log,
	// which usually holds the command invocation context. The rest goes to the
	// tail, where failures surface.
	headShare = 0.2

	elisionMarker = "\n... [log truncated] ...\n"
)

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	// ISO-8601 line prefixes as emitted by GitHub Actions job logs.
	lineTimestamp = regexp.MustCompile(`(?m)^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z\s*`)
	crlf          = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Options control truncation. The zero value uses DefaultMaxChars.
type Options struct {
	MaxChars int
}

// Normalize cleans a raw log into a bounded plain-text excerpt. It never
// fails: empty input yields an empty string, and no input is ever rejected
// here.
func Normalize(rawLog string, opts Options) string {
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	s := crlf.Replace(rawLog)
	s = ansiEscape.ReplaceAllString(s, "")
	s = lineTimestamp.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if len(s) <= maxChars {
		return s
	}

	headBudget := int(float64(maxChars) * headShare)
	tailBudget := maxChars - headBudget - len(elisionMarker)
	if tailBudget < 0 {
		// Budget too small for head+marker+tail; keep only the tail.
		return cutTail(s, maxChars)
	}

	head := breakAtLine(TrimToRuneBoundary(s, headBudget), false)
	tail := breakAtLine(cutTail(s, tailBudget), true)
	return head + elisionMarker + tail
}

// TrimToRuneBoundary cuts s to at most max bytes, backing the cut up so a
// multi-byte UTF-8 sequence is never split.
func TrimToRuneBoundary(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// cutTail returns the last n bytes of s, advancing past any continuation
// bytes so the excerpt never starts mid-rune.
func cutTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	t := s[len(s)-n:]
	for len(t) > 0 && !utf8.RuneStart(t[0]) {
		t = t[1:]
	}
	return t
}

// breakAtLine trims a slice boundary back to the nearest newline so the
// excerpt never starts or ends mid-line. fromStart trims the leading partial
// line, otherwise the trailing one.
func breakAtLine(s string, fromStart bool) string {
	if fromStart {
		if i := strings.IndexByte(s, '\n'); i >= 0 && i+1 < len(s) {
			return s[i+1:]
		}
		return s
	}
	if i := strings.LastIndexByte(s, '\n'); i > 0 {
		return s[:i]
	}
	return s
}
