// Package llm is a minimal client for an Ollama-compatible generation and
// embedding service. Calls are synchronous and never retried: a failed call
// surfaces as a stage failure, and the invoking layer re-runs the stage.
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
	// DefaultHost is the default address of the generation service.
	DefaultHost = "http://localhost:11434"
	// DefaultTimeout bounds every call to the service.
	DefaultTimeout = 120 * time.Second
)

// Client talks to an Ollama-compatible HTTP API.
type Client struct {
	host       string
	httpClient *http.Client
}

// NewClient creates a client for the service at host. An empty host selects
// the default local address.
func NewClient(host string, timeout time.Duration) *Client {
	if host == "" {
		host = DefaultHost
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GenerateOptions configures one text generation call.
type GenerateOptions struct {
	Model       string  // Model name, required
	System      string  // Optional system instruction
	Temperature float64 // Sampling temperature; 0 requests determinism
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate produces a completion for the prompt and returns the raw text.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if opts.Model == "" {
		return "", fmt.Errorf("generate: model is required")
	}

	body := generateRequest{
		Model:   opts.Model,
		Prompt:  prompt,
		System:  opts.System,
		Stream:  false,
		Options: map[string]any{"temperature": opts.Temperature},
	}

	raw, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("generate: decode response: %w", err)
	}
	if parsed.Response == "" {
		return "", fmt.Errorf("generate: empty response from model %s", opts.Model)
	}

	return parsed.Response, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type legacyEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type legacyEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates a vector embedding for the given text. The newer
// /api/embed endpoint is tried first; on a non-success status the client
// falls back to the older /api/embeddings shape.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float64, error) {
	if model == "" {
		return nil, fmt.Errorf("embed: model is required")
	}

	raw, err := c.post(ctx, "/api/embed", embedRequest{Model: model, Input: text})
	if err == nil {
		var parsed embedResponse
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil && len(parsed.Embeddings) > 0 && len(parsed.Embeddings[0]) > 0 {
			return parsed.Embeddings[0], nil
		}
	}

	raw, legacyErr := c.post(ctx, "/api/embeddings", legacyEmbedRequest{Model: model, Prompt: text})
	if legacyErr != nil {
		if err != nil {
			return nil, fmt.Errorf("embed: %w (legacy fallback: %v)", err, legacyErr)
		}
		return nil, fmt.Errorf("embed: %w", legacyErr)
	}

	var parsed legacyEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embed: decode legacy response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embed: no embedding values returned for model %s", model)
	}

	return parsed.Embedding, nil
}

// post issues one JSON request and returns the raw response body.
func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, truncate(string(raw), 200))
	}

	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
