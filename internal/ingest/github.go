// Package ingest resolves a CI build-failure reference to raw log text.
// It speaks the GitHub Actions REST API: latest failed run, its first failed
// job, that job's plain-text log.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"debrief/internal/logging"
	"debrief/internal/normalize"
)

// Client fetches job logs from GitHub Actions.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	maxLogSize int64
}

// Config holds configuration for the GitHub client.
type Config struct {
	Token      string
	BaseURL    string
	Timeout    time.Duration
	MaxLogSize int64
}

// DefaultConfig returns sensible defaults. An empty token works for public
// repositories at a lower rate limit.
func DefaultConfig(token string) Config {
	return Config{
		Token:      token,
		BaseURL:    "https://api.github.com",
		Timeout:    60 * time.Second,
		MaxLogSize: 8 << 20, // 8MB
	}
}

// NewClient creates a GitHub client with defaults.
func NewClient(token string) *Client {
	return NewClientWithConfig(DefaultConfig(token))
}

// NewClientWithConfig creates a GitHub client with custom config.
func NewClientWithConfig(config Config) *Client {
	maxLogSize := config.MaxLogSize
	if maxLogSize <= 0 {
		maxLogSize = 8 << 20
	}
	return &Client{
		token:      config.Token,
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		maxLogSize: maxLogSize,
	}
}

type workflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Conclusion string `json:"conclusion"`
}

type runsResponse struct {
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

type job struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Conclusion string `json:"conclusion"`
}

type jobsResponse struct {
	Jobs []job `json:"jobs"`
}

// FailedJobLog fetches the log of the first failed job. runID 0 means the
// most recent failed run of the repository.
func (c *Client) FailedJobLog(ctx context.Context, owner, repo string, runID int64) (string, error) {
	if runID == 0 {
		id, err := c.latestFailedRun(ctx, owner, repo)
		if err != nil {
			return "", err
		}
		runID = id
	}

	jobID, jobName, err := c.firstFailedJob(ctx, owner, repo, runID)
	if err != nil {
		return "", err
	}
	logging.Get(logging.CategoryIngest).Info("fetching log for %s/%s run %d job %q", owner, repo, runID, jobName)

	return c.jobLog(ctx, owner, repo, jobID)
}

func (c *Client) latestFailedRun(ctx context.Context, owner, repo string) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs?status=failure&per_page=1", c.baseURL, owner, repo)
	var resp runsResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return 0, fmt.Errorf("listing failed runs: %w", err)
	}
	if len(resp.WorkflowRuns) == 0 {
		return 0, fmt.Errorf("no failed workflow runs found for %s/%s", owner, repo)
	}
	return resp.WorkflowRuns[0].ID, nil
}

func (c *Client) firstFailedJob(ctx context.Context, owner, repo string, runID int64) (int64, string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/jobs", c.baseURL, owner, repo, runID)
	var resp jobsResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return 0, "", fmt.Errorf("listing jobs for run %d: %w", runID, err)
	}
	for _, j := range resp.Jobs {
		if j.Conclusion == "failure" {
			return j.ID, j.Name, nil
		}
	}
	return 0, "", fmt.Errorf("run %d has no failed jobs", runID)
}

func (c *Client) jobLog(ctx context.Context, owner, repo string, jobID int64) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/jobs/%d/logs", c.baseURL, owner, repo, jobID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching job log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching job log: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxLogSize))
	if err != nil {
		return "", fmt.Errorf("reading job log: %w", err)
	}
	return string(body), nil
}

// FileExcerpt fetches up to maxBytes of one repository file via the contents
// API, giving the research stage source context for affected files. The read
// is padded by one rune width so the cut never splits a UTF-8 sequence.
func (c *Client) FileExcerpt(ctx context.Context, owner, repo, path string, maxBytes int) (string, error) {
	if maxBytes <= 0 {
		maxBytes = 2000
	}
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, path)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/vnd.github.raw+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching file %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching file %s: HTTP %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+utf8.UTFMax))
	if err != nil {
		return "", fmt.Errorf("reading file %s: %w", path, err)
	}
	return normalize.TrimToRuneBoundary(string(body), maxBytes), nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
