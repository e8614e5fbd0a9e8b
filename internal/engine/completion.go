package engine

import (
	"context"
	"fmt"

	"github.com/MimeLyc/subflow/internal/llm"
)

// Completion translates through an OpenAI-compatible chat completion API
type Completion struct {
	client *llm.Client
}

// NewCompletion validates cfg and builds the chat client
func NewCompletion(cfg llm.Config) (*Completion, error) {
	client, err := llm.NewClient(&cfg)
	if err != nil {
		return nil, fmt.Errorf("completion engine: %w", err)
	}
	return &Completion{client: client}, nil
}

func (c *Completion) Kind() Kind {
	return KindCompletion
}

func (c *Completion) Translate(ctx context.Context, req Request) (string, error) {
	content, err := c.client.SimpleChat(ctx, req.Text, SystemPrompt(req))
	if err != nil {
		return "", &Error{Kind: KindCompletion, Cause: err}
	}

	text := cleanResponse(content)
	if text == "" {
		return "", newError(KindCompletion, "empty response from model %s", c.client.Model())
	}
	return text, nil
}
