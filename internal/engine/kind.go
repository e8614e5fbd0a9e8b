package engine

import (
	"fmt"
	"strings"
)

// Kind is the closed set of translation backends
type Kind int

const (
	KindUnknown Kind = iota
	KindCompletion
	KindGenerative
	KindOllama
	KindEcho
)

var kindNames = map[Kind]string{
	KindCompletion: "completion",
	KindGenerative: "generative",
	KindOllama:     "ollama",
	KindEcho:       "echo",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind resolves an engine name or alias. It is called once when a job
// starts; engines are never re-selected by name per call.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "completion", "gpt", "openai", "chat":
		return KindCompletion, nil
	case "generative", "gemini", "google":
		return KindGenerative, nil
	case "ollama":
		return KindOllama, nil
	case "echo", "identity":
		return KindEcho, nil
	default:
		return KindUnknown, fmt.Errorf("unknown engine %q (expected completion, generative, ollama or echo)", name)
	}
}

// MarshalText lets kinds appear by name in JSON and config files
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts any name ParseKind accepts
func (k *Kind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
