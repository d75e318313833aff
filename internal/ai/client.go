// Package ai wraps the OpenAI chat completions API for answer grading and
// Russian translation of quiz content.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const completionsURL = "https://api.openai.com/v1/chat/completions"

var ErrProviderUnavailable = errors.New("ai provider unavailable")

type ClientConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	HTTPClient  *http.Client
	MaxAttempts int
}

type Client struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	maxAttempts int
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewClient(cfg ClientConfig) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = completionsURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Client{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		baseURL:     baseURL,
		client:      client,
		maxAttempts: attempts,
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a chat completion request and returns the first choice.
// Timeouts are retried with exponential backoff; a 429 waits for the
// provider's Retry-After hint before the next attempt. After the attempt
// budget is spent the last error is surfaced wrapped in
// ErrProviderUnavailable.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: api key not configured", ErrProviderUnavailable)
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		reply, retryAfter, err := c.doRequest(ctx, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == c.maxAttempts-1 {
			break
		}
		switch {
		case retryAfter > 0:
			log.Printf("openai rate limited, waiting %s", retryAfter)
			if !sleepCtx(ctx, retryAfter) {
				return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
			}
		case isTimeout(err):
			log.Printf("openai timeout, attempt %d/%d", attempt+1, c.maxAttempts)
			if !sleepCtx(ctx, time.Duration(1<<attempt)*time.Second) {
				return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
			}
		default:
			if !sleepCtx(ctx, time.Second) {
				return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
			}
		}
	}

	return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

func (c *Client) doRequest(ctx context.Context, body []byte) (reply string, retryAfter time.Duration, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := 5 * time.Second
		if v, convErr := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); convErr == nil && v > 0 {
			wait = time.Duration(v) * time.Second
		}
		return "", wait, fmt.Errorf("openai status 429")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("openai status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", 0, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", 0, fmt.Errorf("empty openai response")
	}
	return out.Choices[0].Message.Content, 0, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
