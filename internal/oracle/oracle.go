// Package oracle wraps the language-model endpoint behind the single
// narrow capability the core depends on: invoke(messages) -> text.
// Requests always carry temperature zero; everything else about the model
// protocol is opaque to the core.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"lanea/internal/config"
	"lanea/internal/logging"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one prompt message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response carries the oracle's text reply.
type Response struct {
	Content string `json:"content"`
}

// Client is the oracle capability set. Implementations own their timeout
// discipline; the core never retries.
type Client interface {
	Invoke(ctx context.Context, messages []Message) (Response, error)
}

// HTTPClient talks to an OpenAI-style chat-completions endpoint.
type HTTPClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient builds a client from an LLM profile; the API key is read
// from the profile's named environment variable.
func NewHTTPClient(profile config.LLMProfile) (*HTTPClient, error) {
	apiKey := os.Getenv(profile.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key: set %s", profile.APIKeyEnv)
	}
	timeout := 120 * time.Second
	if profile.Timeout != "" {
		if d, err := time.ParseDuration(profile.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	return &HTTPClient{
		baseURL:    profile.BaseURL,
		model:      profile.Model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends the messages at temperature zero and returns the first
// choice's content.
func (c *HTTPClient) Invoke(ctx context.Context, messages []Message) (Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Get(logging.CategoryLLM).Error("oracle call failed: %v", err)
		return Response{}, fmt.Errorf("oracle call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("oracle returned HTTP %d: %s", resp.StatusCode, truncate(string(data), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Response{}, fmt.Errorf("parse oracle response: %w", err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("oracle error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("oracle returned no choices")
	}

	logging.Get(logging.CategoryLLM).Info("oracle call ok model=%s took=%s", c.model, time.Since(started).Round(time.Millisecond))
	return Response{Content: parsed.Choices[0].Message.Content}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
