// Package llm provides the Ollama completion client and grounded answer generation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Default configuration for the Ollama completion client.
const (
	DefaultBaseURL = "http://localhost:11434"
	// DefaultTimeout bounds a single generation call so a stalled model
	// cannot hang the pipeline.
	DefaultTimeout = 300 * time.Second
	// DefaultTagsTimeout bounds the availability probe before generation.
	// A loaded-but-alive service can take a while to answer /api/tags, so
	// this is deliberately generous; interactive callers pass a shorter
	// context deadline.
	DefaultTagsTimeout = 30 * time.Second
)

// ClientConfig holds configuration for the completion client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the Ollama HTTP API.
type Client struct {
	baseURL    string
	client     *http.Client
	tagsClient *http.Client
}

// GenerateOptions are the sampling parameters for a completion call.
type GenerateOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewClient creates a completion client, applying defaults for zero values.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		tagsClient: &http.Client{Timeout: DefaultTagsTimeout},
	}
}

// ListModels returns the model names the service reports via /api/tags.
// This doubles as the health check: an error means the service is unreachable.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.tagsClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion service status %d", resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// Generate runs a non-streaming completion.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: &options{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := fmt.Sprintf("completion service status %d", resp.StatusCode)
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			msg += ": " + apiErr.Error
		}
		return "", errors.New(msg)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return gen.Response, nil
}

// isTimeout reports whether err is a timeout (deadline or net timeout) as
// opposed to a reachability failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isTransport reports whether err came from the HTTP transport (connection
// refused, DNS failure) rather than from the service itself.
func isTransport(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
