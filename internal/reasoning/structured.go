package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"debrief/internal/analysis"
)

// CallStructured is the validation boundary for structured reasoning output.
// It sends the prompt, extracts the first parseable JSON object from the
// completion, and unmarshals it into out. Any response that yields no valid
// object is a MalformedResponse service error; the raw completion is never
// trusted past this point.
func CallStructured(ctx context.Context, c Client, systemPrompt, userPrompt string, out interface{}) error {
	raw, err := c.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}
	if err := UnmarshalFirstJSON(raw, out); err != nil {
		return analysis.NewServiceError("reasoning", analysis.ReasonMalformedResponse, err)
	}
	return nil
}

// UnmarshalFirstJSON finds the first JSON object in free-form completion text
// and unmarshals it. Markdown code fences and surrounding prose are
// tolerated.
func UnmarshalFirstJSON(raw string, out interface{}) error {
	candidates := findJSONCandidates(stripFences(raw))
	if len(candidates) == 0 {
		return fmt.Errorf("no JSON object found in completion (%d bytes)", len(raw))
	}
	var lastErr error
	for _, cand := range candidates {
		if err := json.Unmarshal([]byte(cand), out); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("no candidate JSON object parsed: %w", lastErr)
}

// stripFences removes markdown code fence lines so fenced JSON scans cleanly.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// findJSONCandidates scans the input string for top-level JSON object
// candidates. It handles nested braces and string escaping to correctly
// identify boundaries.
//
// Byte-level iteration is safe for the ASCII delimiters ({, }, ", \) because
// UTF-8 guarantees ASCII bytes never appear inside a multi-byte sequence.
func findJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	var start int = -1
	var inString bool
	var escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		if b == '"' {
			inString = true
			continue
		}

		if b == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if b == '}' {
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}
