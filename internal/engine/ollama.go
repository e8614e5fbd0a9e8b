package engine

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

const defaultOllamaURL = "http://localhost:11434"

// OllamaConfig configures a local Ollama server
type OllamaConfig struct {
	BaseURL     string  `toml:"base_url" yaml:"base_url"`
	Model       string  `toml:"model" yaml:"model"`
	Temperature float64 `toml:"temperature" yaml:"temperature"`
	NumCtx      int     `toml:"num_ctx" yaml:"num_ctx"`
	Timeout     int     `toml:"timeout" yaml:"timeout"` // seconds
}

// Validate checks the settings needed to reach the server
func (c OllamaConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("ollama model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("ollama temperature must be between 0 and 2")
	}
	return nil
}

// Ollama translates with /api/generate, non-streaming
type Ollama struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

// NewOllama validates cfg and fills defaults
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ollama engine: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	if cfg.NumCtx < 1 {
		cfg.NumCtx = 8192
	}
	if cfg.Timeout < 1 {
		cfg.Timeout = 300
	}
	return &Ollama{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (o *Ollama) Kind() Kind {
	return KindOllama
}

type ollamaRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options"`
}

func (o *Ollama) Translate(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:  o.cfg.Model,
		System: SystemPrompt(req),
		Prompt: req.Text,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": o.cfg.Temperature,
			"num_ctx":     o.cfg.NumCtx,
		},
	})
	if err != nil {
		return "", newError(KindOllama, "marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(o.cfg.BaseURL, "/")+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", newError(KindOllama, "create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", newError(KindOllama, "request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", newError(KindOllama, "status %d (check if model %q is pulled): %s", resp.StatusCode, o.cfg.Model, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", newError(KindOllama, "parse response: %w", err)
	}
	if parsed.Error != "" {
		return "", newError(KindOllama, "%s", parsed.Error)
	}

	text := cleanResponse(parsed.Response)
	if text == "" {
		return "", newError(KindOllama, "ollama returned empty translation")
	}
	return text, nil
}
