package reasoning

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"debrief/internal/analysis"
)

func newTestAnthropic(url string) *AnthropicClient {
	cfg := DefaultAnthropicConfig("test-key")
	cfg.BaseURL = url
	cfg.Timeout = 5 * time.Second
	return NewAnthropicClientWithConfig(cfg)
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header: %s", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"  classified  "}]}`))
	}))
	defer server.Close()

	client := newTestAnthropic(server.URL)
	got, err := client.Complete(context.Background(), "analyze this")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "classified" {
		t.Errorf("expected trimmed completion, got %q", got)
	}
}

func TestAnthropicServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestAnthropic(server.URL)
	_, err := client.Complete(context.Background(), "analyze this")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *analysis.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if se.Reason != analysis.ReasonServiceUnavailable {
		t.Errorf("expected service_unavailable, got %s", se.Reason)
	}
	if !se.Reason.Retryable() {
		t.Error("5xx should be retryable")
	}
}

func TestAnthropicRateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestAnthropic(server.URL)
	_, err := client.Complete(context.Background(), "analyze this")
	if analysis.ReasonOf(err) != analysis.ReasonServiceUnavailable {
		t.Errorf("429 should map to service_unavailable, got %s", analysis.ReasonOf(err))
	}
}

func TestAnthropicBadRequestNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer server.Close()

	client := newTestAnthropic(server.URL)
	_, err := client.Complete(context.Background(), "analyze this")
	if analysis.ReasonOf(err) != analysis.ReasonMalformedResponse {
		t.Errorf("4xx should map to malformed_response, got %s", analysis.ReasonOf(err))
	}
	if analysis.ReasonOf(err).Retryable() {
		t.Error("4xx must not be retryable")
	}
}

func TestAnthropicGarbageBodyIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	client := newTestAnthropic(server.URL)
	_, err := client.Complete(context.Background(), "analyze this")
	if analysis.ReasonOf(err) != analysis.ReasonMalformedResponse {
		t.Errorf("garbage body should be malformed_response, got %s", analysis.ReasonOf(err))
	}
}

func TestAnthropicCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestAnthropic(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := client.Complete(ctx, "analyze this")
	if analysis.ReasonOf(err) != analysis.ReasonCancelled {
		t.Errorf("cancelled request should map to cancelled, got %s", analysis.ReasonOf(err))
	}
}

func TestAnthropicMissingAPIKey(t *testing.T) {
	client := NewAnthropicClient("")
	_, err := client.Complete(context.Background(), "analyze this")
	if err == nil {
		t.Fatal("expected error without API key")
	}
}
