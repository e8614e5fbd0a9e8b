// Package termmap loads per-show glossaries that pin how names and recurring
// terms are translated. A glossary lives in a file named after the language
// pair, e.g. term_map.en-zh.json, in the subtitle's directory or any parent.
package termmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// TermMap maps source language terms to target language terms
type TermMap map[string]string

var extensions = []string{".json", ".yaml", ".yml"}

// Basename returns the glossary name without extension. Only base language
// codes are used, so en-US and en share a glossary.
func Basename(source, target language.Tag) string {
	return "term_map." + baseCode(source) + "-" + baseCode(target)
}

// Find walks up from dir and returns the closest glossary for the pair, or ""
func Find(dir string, source, target language.Tag) string {
	name := Basename(source, target)
	current := dir
	for {
		for _, ext := range extensions {
			candidate := filepath.Join(current, name+ext)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// Load reads a JSON or YAML glossary. Entries with a blank side are dropped.
func Load(path string) (TermMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read term map: %w", err)
	}

	var raw map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse term map %s: %w", path, err)
	}

	tm := make(TermMap, len(raw))
	for source, target := range raw {
		source, target = strings.TrimSpace(source), strings.TrimSpace(target)
		if source == "" || target == "" {
			continue
		}
		tm[source] = target
	}
	return tm, nil
}

// Match returns the entries whose source term occurs in any of texts.
// Matching is case-sensitive, which suits proper nouns.
func Match(tm TermMap, texts ...string) TermMap {
	matched := make(TermMap)
	for source, target := range tm {
		for _, text := range texts {
			if strings.Contains(text, source) {
				matched[source] = target
				break
			}
		}
	}
	return matched
}

func baseCode(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}
