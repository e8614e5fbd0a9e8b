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

const defaultGenerativeURL = "https://generativelanguage.googleapis.com"

// GenerativeConfig configures the Gemini generateContent backend
type GenerativeConfig struct {
	APIKey      string  `toml:"api_key" yaml:"api_key"`
	BaseURL     string  `toml:"base_url" yaml:"base_url"`
	Model       string  `toml:"model" yaml:"model"`
	Temperature float64 `toml:"temperature" yaml:"temperature"`
	Timeout     int     `toml:"timeout" yaml:"timeout"` // seconds
}

// Validate checks the settings needed to reach the API
func (c GenerativeConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("generative API key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("generative model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("generative temperature must be between 0 and 2")
	}
	return nil
}

// Generative translates through the Gemini generateContent API
type Generative struct {
	cfg        GenerativeConfig
	httpClient *http.Client
}

// NewGenerative validates cfg and fills defaults
func NewGenerative(cfg GenerativeConfig) (*Generative, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("generative engine: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGenerativeURL
	}
	if cfg.Timeout < 1 {
		cfg.Timeout = 60
	}
	return &Generative{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (g *Generative) Kind() Kind {
	return KindGenerative
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (g *Generative) Translate(ctx context.Context, req Request) (string, error) {
	body := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Text}}}},
		GenerationConfig:  geminiGenerationConfig{Temperature: g.cfg.Temperature},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: SystemPrompt(req)}}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", newError(KindGenerative, "marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", newError(KindGenerative, "create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", newError(KindGenerative, "request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(KindGenerative, "read response: %w", err)
	}

	var parsed geminiResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && parsed.Error != nil {
			return "", newError(KindGenerative, "status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", newError(KindGenerative, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return "", newError(KindGenerative, "parse response: %w", decodeErr)
	}
	if len(parsed.Candidates) == 0 {
		return "", newError(KindGenerative, "no candidates in response")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := cleanResponse(sb.String())
	if text == "" {
		return "", newError(KindGenerative, "empty response (finish reason %q)", parsed.Candidates[0].FinishReason)
	}
	return text, nil
}
