package llm

import (
	"fmt"
	"strings"
)

// Config holds the settings of an OpenAI-compatible endpoint
// (OpenAI, OpenRouter, a local gateway).
type Config struct {
	APIKey      string  `json:"api_key" toml:"api_key" yaml:"api_key"`
	APIURL      string  `json:"api_url" toml:"api_url" yaml:"api_url"`
	Model       string  `json:"model" toml:"model" yaml:"model"`
	MaxTokens   int     `json:"max_tokens" toml:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" toml:"temperature" yaml:"temperature"`
	Timeout     int     `json:"timeout" toml:"timeout" yaml:"timeout"` // seconds
	SiteURL     string  `json:"site_url" toml:"site_url" yaml:"site_url"`
	AppName     string  `json:"app_name" toml:"app_name" yaml:"app_name"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// GetHeaders returns the headers for the LLM API request
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}

	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}

	return headers
}

func (c *Config) endpoint(path string) string {
	return strings.TrimRight(c.APIURL, "/") + path
}
