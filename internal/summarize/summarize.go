// Package summarize is a thin net/http client over the Anthropic
// Messages API, used to populate a session's one-line summary. No SDK is
// vendored; spec.md frames this as a thin external HTTP client, not a
// component worth a dependency.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	endpoint = "https://api.anthropic.com/v1/messages"
	timeout  = 5 * time.Second
	model    = "claude-3-5-haiku-20241022"
)

// Client summarizes a session's original prompt and recent activity into
// a short human-readable goal description.
type Client struct {
	apiKey string
	http   *http.Client
}

// New returns a no-op-capable Client. If apiKey is empty, Summarize
// always returns ("", nil) without making any request.
func New(apiKey string) *Client {
	return &Client{apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

func (c *Client) Enabled() bool { return c.apiKey != "" }

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Summarize asks the model for a short (<12 word) description of what
// the session is doing, given its original prompt and most recent
// assistant text. Absent an API key this is a no-op returning ("", nil).
func (c *Client) Summarize(ctx context.Context, originalPrompt, recentText string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	prompt := fmt.Sprintf("Summarize this coding session in under 12 words.\nOriginal request: %s\nMost recent activity: %s", originalPrompt, recentText)
	reqBody, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: 64,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal summarize request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build summarize request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarize request: unexpected status %d", resp.StatusCode)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summarize response: %w", err)
	}
	if len(out.Content) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Content[0].Text), nil
}
