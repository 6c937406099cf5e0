package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"debrief/internal/analysis"
	"debrief/internal/logging"

	"google.golang.org/genai"
)

// GeminiClient implements Client on the official genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:      apiKey,
		Model:       "gemini-2.5-flash",
		Temperature: 0.1,
		Timeout:     2 * time.Minute,
	}
}

// NewGeminiClient creates a new Gemini client with defaults.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	return NewGeminiClientWithConfig(ctx, DefaultGeminiConfig(apiKey))
}

// NewGeminiClientWithConfig creates a new Gemini client with custom config.
func NewGeminiClientWithConfig(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: config.Temperature,
		timeout:     timeout,
	}, nil
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.Get(logging.CategoryReasoning).Debug("[Gemini] CompleteWithSystem: model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	temp := c.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:       &temp,
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		logging.Get(logging.CategoryReasoning).Error("[Gemini] request failed: %v", err)
		return "", wrapTransport(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", analysis.NewServiceError("reasoning", analysis.ReasonMalformedResponse, fmt.Errorf("no completion returned"))
	}

	logging.Get(logging.CategoryReasoning).Info("[Gemini] completed in %v response_len=%d", time.Since(startTime), len(text))
	return text, nil
}
