package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"debrief/internal/search"
)

// stage keys used by the mock reasoner to dispatch on the system prompt.
const (
	keyTriage    = "triage"
	keyResearch  = "research"
	keySynthesis = "synthesis"
)

func stageOf(systemPrompt string) string {
	switch {
	case strings.Contains(systemPrompt, "triage analyst"):
		return keyTriage
	case strings.Contains(systemPrompt, "remediation researcher"):
		return keyResearch
	case strings.Contains(systemPrompt, "report writer"):
		return keySynthesis
	default:
		return "unknown"
	}
}

// mockReasoner answers each stage with a canned response and can inject a
// fixed number of failures per stage before succeeding.
type mockReasoner struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]int // remaining failures per stage
	failErr   error
	calls     map[string]int
	hooks     map[string]func(ctx context.Context) error
}

func newMockReasoner() *mockReasoner {
	return &mockReasoner{
		responses: map[string]string{
			keyTriage: `{
				"error_type": "SyntaxError",
				"category": "syntax_error",
				"severity": "high",
				"message": "invalid syntax in app/main.py line 42",
				"affected_resources": ["app/main.py"]
			}`,
			keyResearch: `{
				"candidates": [
					{"title": "Fix the unclosed parenthesis in app/main.py", "confidence": 0.95, "rationale": "the parser reports an unterminated expression at line 42", "steps": ["open app/main.py", "close the parenthesis on line 42"]},
					{"title": "Run a linter before committing", "confidence": 0.4, "rationale": "prevents recurrence"}
				]
			}`,
			keySynthesis: `The build failed with SyntaxError in app/main.py. Apply "Fix the unclosed parenthesis in app/main.py" first; a linter step would prevent recurrence.`,
		},
		failures: map[string]int{},
		calls:    map[string]int{},
		hooks:    map[string]func(ctx context.Context) error{},
	}
}

func (m *mockReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockReasoner) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	key := stageOf(system)

	m.mu.Lock()
	m.calls[key]++
	hook := m.hooks[key]
	remaining := m.failures[key]
	if remaining > 0 {
		m.failures[key] = remaining - 1
	}
	resp, ok := m.responses[key]
	failErr := m.failErr
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return "", err
		}
	}
	if remaining > 0 {
		return "", failErr
	}
	if !ok {
		return "", fmt.Errorf("no canned response for stage %s", key)
	}
	return resp, nil
}

func (m *mockReasoner) callCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

// mockSearcher returns fixed results or a fixed error for every query.
type mockSearcher struct {
	mu      sync.Mutex
	results []search.Result
	err     error
	queries []string
}

func (m *mockSearcher) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// testOptions disables real backoff delays.
func testOptions() Options {
	return Options{
		sleep: func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func retries(n int) *int {
	return &n
}
