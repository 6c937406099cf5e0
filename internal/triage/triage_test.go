package triage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debrief/internal/analysis"
)

type mockReasoner struct {
	response   string
	err        error
	lastPrompt string
}

func (m *mockReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	m.lastPrompt = prompt
	return m.response, m.err
}

func (m *mockReasoner) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	m.lastPrompt = user
	return m.response, m.err
}

func TestClassifyCoercesVocabulary(t *testing.T) {
	m := &mockReasoner{response: `{
		"error_type": "ModuleNotFoundError",
		"category": "Missing Package",
		"severity": "HIGH",
		"message": "The requests package is not installed.",
		"affected_resources": ["requirements.txt"]
	}`}

	cls, err := New(m).Classify(context.Background(), "ModuleNotFoundError: No module named 'requests'")
	require.NoError(t, err)
	assert.Equal(t, "ModuleNotFoundError", cls.ErrorType)
	assert.Equal(t, "missing_package", cls.Category)
	assert.Equal(t, analysis.SeverityHigh, cls.Severity)
	assert.Equal(t, []string{"requirements.txt"}, cls.AffectedResources)
}

func TestClassifyOutOfVocabularyBecomesUnknown(t *testing.T) {
	m := &mockReasoner{response: `{
		"error_type": "WeirdError",
		"category": "quantum_flux_failure",
		"severity": "catastrophic",
		"message": "something odd"
	}`}

	cls, err := New(m).Classify(context.Background(), "weird output")
	require.NoError(t, err)
	assert.Equal(t, analysis.CategoryUnknown, cls.Category)
	assert.Equal(t, analysis.SeverityMedium, cls.Severity)
}

func TestClassifyEmptyLogStillClassifies(t *testing.T) {
	m := &mockReasoner{response: `{
		"error_type": "InsufficientLogData",
		"category": "unknown",
		"severity": "low",
		"message": "no log content captured"
	}`}

	cls, err := New(m).Classify(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, analysis.CategoryUnknown, cls.Category)
	assert.Contains(t, m.lastPrompt, "insufficient log data")
}

func TestClassifyFillsMissingFields(t *testing.T) {
	m := &mockReasoner{response: `{"category": "syntax_error"}`}

	cls, err := New(m).Classify(context.Background(), "SyntaxError: invalid syntax")
	require.NoError(t, err)
	assert.Equal(t, "UnknownError", cls.ErrorType)
	assert.Equal(t, "no failure description available", cls.Message)
	assert.Equal(t, "syntax_error", cls.Category)
}

func TestClassifyMalformedResponseSurfaces(t *testing.T) {
	m := &mockReasoner{response: "I refuse to answer in JSON."}

	_, err := New(m).Classify(context.Background(), "some log")
	require.Error(t, err)
	assert.Equal(t, analysis.ReasonMalformedResponse, analysis.ReasonOf(err))
}

func TestClassifyServiceErrorSurfaces(t *testing.T) {
	m := &mockReasoner{err: analysis.NewServiceError("reasoning", analysis.ReasonServiceUnavailable, assert.AnError)}

	_, err := New(m).Classify(context.Background(), "some log")
	require.Error(t, err)
	assert.Equal(t, analysis.ReasonServiceUnavailable, analysis.ReasonOf(err))
}

func TestClassifyPromptCarriesVocabulary(t *testing.T) {
	m := &mockReasoner{response: `{"error_type":"E","category":"unknown","severity":"low","message":"m"}`}
	_, err := New(m).Classify(context.Background(), "log")
	require.NoError(t, err)
	assert.Contains(t, m.lastPrompt, "missing_package")
	assert.Contains(t, m.lastPrompt, "version_conflict")
	assert.Contains(t, m.lastPrompt, "unknown")
}
