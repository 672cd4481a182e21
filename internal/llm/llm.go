// Package llm defines the language-model contract consumed by query
// expansion and an Ollama-backed implementation. Cancellation is carried
// by the context; callers own the timeout.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default Ollama settings.
const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama3.2"

	// connectTimeout bounds dialing; request timeouts come from the
	// caller's context so a single owner controls cancellation.
	connectTimeout = 5 * time.Second

	poolSize = 4
)

// ErrUnavailable is returned when the model endpoint cannot be reached.
// Callers treat it as a degraded outcome, not a failure.
var ErrUnavailable = errors.New("language model unavailable")

// Model invokes a language model with a prompt and returns its text.
type Model interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// OllamaConfig configures the Ollama chat client.
type OllamaConfig struct {
	Host  string
	Model string
}

// Ollama is a chat-completion client for the Ollama /api/chat endpoint.
type Ollama struct {
	client *http.Client
	config OllamaConfig
}

var _ Model = (*Ollama)(nil)

// NewOllama creates an Ollama chat client with pooled connections.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		IdleConnTimeout:     10 * time.Second,
	}
	// No client-level timeout: it would override per-request context
	// deadlines set by the expansion layer.
	return &Ollama{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// Invoke sends the prompt and returns the model's reply text.
func (o *Ollama) Invoke(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    o.config.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, parsed.Error)
	}
	return parsed.Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
