package subtitle

import (
	"fmt"
	"io"
	"os"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// ReadFile loads and parses a subtitle file, choosing the format by extension
func ReadFile(path string) (*Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("subtitle file does not exist: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	return Parse(raw, format)
}

// Read parses subtitle content from r. name only selects the format.
func Read(r io.Reader, name string) (*Document, error) {
	format, err := FormatFromPath(name)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle content: %w", err)
	}
	return Parse(raw, format)
}

// DetectLanguage votes per segment and returns the most frequent language.
// Returns language.Und when nothing could be detected.
func DetectLanguage(segments []Segment) language.Tag {
	if len(segments) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, seg := range segments {
		code := whatlanggo.DetectLang(seg.Text).Iso6391()
		if code == "" {
			continue
		}
		counts[code]++
	}

	var topLang string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < topLang) {
			topLang = lang
			topCount = count
		}
	}
	if topLang == "" {
		return language.Und
	}

	tag, err := language.Parse(topLang)
	if err != nil {
		return language.Und
	}
	return tag
}
