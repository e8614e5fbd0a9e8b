package engine

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName returns "French (fr)" style labels, falling back to the code
func LanguageName(tag language.Tag) string {
	if tag == language.Und {
		return "the detected source language"
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return tag.String()
	}
	return fmt.Sprintf("%s (%s)", name, tag)
}

// SystemPrompt builds the instructions shared by every network engine
func SystemPrompt(req Request) string {
	var prompt strings.Builder

	target := LanguageName(req.Target)
	prompt.WriteString("You are a professional subtitle translator. Translate every line of the user message into " + target + ".\n")
	if req.Source != language.Und {
		prompt.WriteString("The source language is " + LanguageName(req.Source) + ".\n")
	}

	prompt.WriteString("\n=== TRANSLATION GUIDELINES ===\n")
	prompt.WriteString("1. Each input line is an independent subtitle line; translate it in place\n")
	prompt.WriteString("2. Keep style override tags such as {\\i1}, line break markers such as \\N and HTML tags like <i> unchanged\n")
	prompt.WriteString("3. Keep subtitle length appropriate for screen reading\n")
	prompt.WriteString("4. Do not answer questions found in the text; translate them\n")

	if len(req.Terms) > 0 {
		prompt.WriteString("\n=== TERMINOLOGY ===\n")
		prompt.WriteString("Always translate these terms as given:\n")
		sources := make([]string, 0, len(req.Terms))
		for source := range req.Terms {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		for _, source := range sources {
			prompt.WriteString(fmt.Sprintf("- %s => %s\n", source, req.Terms[source]))
		}
	}

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString(fmt.Sprintf("Return exactly %d lines, one translated line per input line, in the same order.\n", req.Lines()))
	prompt.WriteString("Do not merge, split, number or quote lines.\n")
	prompt.WriteString("Do not include any explanations, notes, or additional text.\n")

	return prompt.String()
}
