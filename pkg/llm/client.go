// Package llm is the client for the text analysis service. It sends article
// text plus metadata and expects a JSON response holding the five analysis
// collections.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// PromptVersion is stored alongside every summary so results produced
	// by different prompt revisions can be told apart.
	PromptVersion = "v1.0.0"

	// Default input cap so a single huge article cannot blow the request
	// budget. Overridable through Config.MaxInputChars.
	maxInputChars = 40000

	apiVersion = "2023-06-01"

	inputCostPerMillion  = 3.0
	outputCostPerMillion = 15.0
)

// ArticleMeta is the document context sent with the text so the model can
// anchor its analysis.
type ArticleMeta struct {
	Title       string
	Author      string
	PublishedAt string
	URL         string
}

// Result carries the raw response text and the token accounting for one
// analysis call.
type Result struct {
	ResponseText string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// ServiceError is a non-retryable failure from the analysis service.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("analysis service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Config for the analysis client. Zero values get sensible defaults except
// APIKey, which is required.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxTokens     int
	MaxInputChars int
	Timeout       time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
	sleep  func(context.Context, time.Duration) error
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxInputChars == 0 {
		cfg.MaxInputChars = maxInputChars
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sleep:  sleepContext,
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

const systemPrompt = `You are an analyst extracting structured insight from articles.
Respond with a single JSON object containing exactly these five arrays:
"claims" (objects with "claim" and "context"),
"metaphors" (objects with "metaphor" and "explanation"),
"examples" (objects with "example" and "context"),
"uncertainties" (objects with "topic", "nature_of_uncertainty", and optionally "author_statement"),
"conflicts" (objects with "topic" and "description").
Use empty arrays for categories the article does not contain. Output JSON only, no prose.`

// Analyze sends text and metadata for structured analysis. Text longer than
// the input cap is truncated before sending. Transient failures (429, 500,
// 503) are retried up to three times with doubling backoff.
func (c *Client) Analyze(ctx context.Context, text string, meta ArticleMeta) (*Result, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("analysis API key not configured")
	}
	if len(text) > c.cfg.MaxInputChars {
		text = text[:c.cfg.MaxInputChars]
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: userPrompt(text, meta)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < 4; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}
		result, retryable, err := c.send(ctx, body)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("analysis request failed after retries: %w", lastErr)
}

func (c *Client) send(ctx context.Context, body []byte) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read analysis response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return nil, true, &ServiceError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	default:
		return nil, false, &ServiceError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var decoded messagesResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, false, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	var sb strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Result{
		ResponseText: sb.String(),
		Model:        decoded.Model,
		InputTokens:  decoded.Usage.InputTokens,
		OutputTokens: decoded.Usage.OutputTokens,
		CostUSD:      Cost(decoded.Usage.InputTokens, decoded.Usage.OutputTokens),
	}, false, nil
}

// Cost converts token counts into dollars using the per-million rates.
func Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*inputCostPerMillion + float64(outputTokens)/1e6*outputCostPerMillion
}

func userPrompt(text string, meta ArticleMeta) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following article.\n\n")
	if meta.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", meta.Title)
	}
	if meta.Author != "" {
		fmt.Fprintf(&sb, "Author: %s\n", meta.Author)
	}
	if meta.PublishedAt != "" {
		fmt.Fprintf(&sb, "Published: %s\n", meta.PublishedAt)
	}
	if meta.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", meta.URL)
	}
	sb.WriteString("\n")
	sb.WriteString(text)
	return sb.String()
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
