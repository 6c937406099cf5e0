package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"debrief/internal/analysis"
	"debrief/internal/logging"
)

// TavilyClient implements Client against the Tavily search API.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	depth      string
	httpClient *http.Client
}

// TavilyConfig holds configuration for the Tavily client.
type TavilyConfig struct {
	APIKey  string
	BaseURL string
	Depth   string // "basic" or "advanced"
	Timeout time.Duration
}

// DefaultTavilyConfig returns sensible defaults.
func DefaultTavilyConfig(apiKey string) TavilyConfig {
	return TavilyConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.tavily.com",
		Depth:   "advanced",
		Timeout: 30 * time.Second,
	}
}

// NewTavilyClient creates a new Tavily client with defaults.
func NewTavilyClient(apiKey string) *TavilyClient {
	return NewTavilyClientWithConfig(DefaultTavilyConfig(apiKey))
}

// NewTavilyClientWithConfig creates a new Tavily client with custom config.
func NewTavilyClientWithConfig(config TavilyConfig) *TavilyClient {
	depth := config.Depth
	if depth == "" {
		depth = "advanced"
	}
	return &TavilyClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		depth:   depth,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Results []Result `json:"results"`
}

// Search runs one query and returns scored results. One request, no internal
// retries.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, analysis.NewServiceError("search", analysis.ReasonServiceUnavailable, fmt.Errorf("API key not configured"))
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	startTime := time.Now()
	logging.Get(logging.CategorySearch).Debug("[Tavily] Search: query=%q max=%d", query, maxResults)

	reqBody := tavilyRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: c.depth,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/search", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Get(logging.CategorySearch).Error("[Tavily] request failed: %v", err)
		return nil, wrapSearchTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapSearchTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, analysis.NewServiceError("search", analysis.ReasonServiceUnavailable, err)
		}
		return nil, analysis.NewServiceError("search", analysis.ReasonMalformedResponse, err)
	}

	var tavilyResp tavilyResponse
	if err := json.Unmarshal(body, &tavilyResp); err != nil {
		return nil, analysis.NewServiceError("search", analysis.ReasonMalformedResponse, fmt.Errorf("failed to parse response: %w", err))
	}

	logging.Get(logging.CategorySearch).Info("[Tavily] Search: %d results in %v", len(tavilyResp.Results), time.Since(startTime))
	return tavilyResp.Results, nil
}

func wrapSearchTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return analysis.NewServiceError("search", analysis.ReasonCancelled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return analysis.NewServiceError("search", analysis.ReasonTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return analysis.NewServiceError("search", analysis.ReasonTimeout, err)
	}
	return analysis.NewServiceError("search", analysis.ReasonServiceUnavailable, err)
}
