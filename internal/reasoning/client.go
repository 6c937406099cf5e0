// Package reasoning provides clients for the external reasoning service that
// performs classification, research distillation, and narrative synthesis.
// Two providers are supported: Google Gemini (via the genai SDK) and
// Anthropic (direct HTTP). All failures are tagged with the analysis failure
// taxonomy; retry policy lives with the caller, never here.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"debrief/internal/analysis"
)

const defaultSystemPrompt = "You are a CI build-failure analyst. Ground every answer only in the provided log excerpt and search results. Be concise and respond with strict JSON when asked."

// Client defines the interface for reasoning service providers.
type Client interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// wrapTransport classifies a transport-level failure from an HTTP round trip.
func wrapTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return analysis.NewServiceError("reasoning", analysis.ReasonCancelled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return analysis.NewServiceError("reasoning", analysis.ReasonTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return analysis.NewServiceError("reasoning", analysis.ReasonTimeout, err)
	}
	return analysis.NewServiceError("reasoning", analysis.ReasonServiceUnavailable, err)
}

// wrapStatus classifies a non-2xx HTTP status. 5xx and 429 are service
// unavailability; anything else means the request itself was bad, which the
// service answered, so it is not retryable.
func wrapStatus(status int, body string) error {
	err := fmt.Errorf("API request failed with status %d: %s", status, body)
	if status >= 500 || status == http.StatusTooManyRequests {
		return analysis.NewServiceError("reasoning", analysis.ReasonServiceUnavailable, err)
	}
	return analysis.NewServiceError("reasoning", analysis.ReasonMalformedResponse, err)
}
