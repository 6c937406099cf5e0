package reasoning

import (
	"context"
	"fmt"
	"os"
)

// Provider identifies a reasoning service provider.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// ProviderConfig holds the resolved provider and credentials.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string // optional model override
}

// DetectProvider resolves the provider from the environment.
// Priority: GEMINI_API_KEY > ANTHROPIC_API_KEY.
func DetectProvider() (*ProviderConfig, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return &ProviderConfig{Provider: ProviderGemini, APIKey: key}, nil
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return &ProviderConfig{Provider: ProviderAnthropic, APIKey: key}, nil
	}
	return nil, fmt.Errorf("no reasoning provider configured: set GEMINI_API_KEY or ANTHROPIC_API_KEY")
}

// NewClient builds a client for the resolved provider.
func NewClient(ctx context.Context, cfg *ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderGemini:
		gc := DefaultGeminiConfig(cfg.APIKey)
		if cfg.Model != "" {
			gc.Model = cfg.Model
		}
		return NewGeminiClientWithConfig(ctx, gc)
	case ProviderAnthropic:
		ac := DefaultAnthropicConfig(cfg.APIKey)
		if cfg.Model != "" {
			ac.Model = cfg.Model
		}
		return NewAnthropicClientWithConfig(ac), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
