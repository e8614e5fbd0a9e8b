// Package engine adapts translation backends to a single call contract.
package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/llm"
)

// Request is one batch sent to an engine
type Request struct {
	Text   string       // newline-delimited batch text, one unit per line
	Target language.Tag // language to translate to
	Source language.Tag // detected source language, language.Und if unknown
	Terms  map[string]string // glossary entries that occur in Text
}

// Lines returns how many lines the engine is asked to return
func (r Request) Lines() int {
	if r.Text == "" {
		return 0
	}
	return strings.Count(r.Text, "\n") + 1
}

// Engine translates one batch. Implementations never retry; fallback is the caller's job.
type Engine interface {
	Kind() Kind
	Translate(ctx context.Context, req Request) (string, error)
}

// Error wraps any transport, status or malformed-response failure of an engine
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// Config carries the settings of every backend. It is built once and passed
// to New; engines keep their own copy.
type Config struct {
	Completion llm.Config
	Generative GenerativeConfig
	Ollama     OllamaConfig
}

// New constructs the engine for kind
func New(kind Kind, cfg Config) (Engine, error) {
	switch kind {
	case KindCompletion:
		return NewCompletion(cfg.Completion)
	case KindGenerative:
		return NewGenerative(cfg.Generative)
	case KindOllama:
		return NewOllama(cfg.Ollama)
	case KindEcho:
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("no engine for kind %s", kind)
	}
}

// cleanResponse strips code fences and surrounding blank lines a model may add
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.Trim(s, "\r\n")
}
