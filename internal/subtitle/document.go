package subtitle

import (
	"path/filepath"
	"strings"
	"unicode"
)

// FormatFromPath selects the parser by file extension
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".srt":
		return FormatSRT, nil
	case ".ass", ".ssa":
		return FormatASS, nil
	case ".vtt":
		return FormatVTT, nil
	default:
		return "", &UnsupportedFormatError{Ext: ext}
	}
}

// Parse decomposes raw into a Document using the strategy for format
func Parse(raw []byte, format Format) (*Document, error) {
	lines := splitLines(string(raw))
	b := &builder{doc: &Document{Format: format}}

	var err error
	switch format {
	case FormatSRT:
		err = parseSRT(b, lines)
	case FormatASS:
		parseASS(b, lines)
	case FormatVTT:
		parseVTT(b, lines)
	default:
		return nil, &UnsupportedFormatError{Ext: "." + string(format)}
	}
	if err != nil {
		return nil, err
	}
	return b.doc, nil
}

// Segments returns the translatable segments in document order
func (d *Document) Segments() []Segment {
	ret := make([]Segment, 0)
	for i, el := range d.Elements {
		if el.Kind != KindText {
			continue
		}
		ret = append(ret, Segment{ID: el.SegmentID, Text: el.Text, Position: i})
	}
	return ret
}

// Render writes the document, substituting segment text found in translations.
// Segments without an entry keep their source text.
func (d *Document) Render(translations map[int]string) []byte {
	var sb strings.Builder
	for _, el := range d.Elements {
		text := el.Text
		if el.Kind == KindText {
			if translated, ok := translations[el.SegmentID]; ok {
				text = sanitizeLine(translated)
			}
		}
		sb.WriteString(text)
		sb.WriteString(el.EOL)
	}
	return []byte(sb.String())
}

// sanitizeLine keeps a replacement on a single physical line
func sanitizeLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

type rawLine struct {
	text string
	eol  string
}

// splitLines keeps each line's terminator so the input can be rebuilt exactly
func splitLines(raw string) []rawLine {
	lines := make([]rawLine, 0, strings.Count(raw, "\n")+1)
	for len(raw) > 0 {
		i := strings.IndexByte(raw, '\n')
		if i < 0 {
			lines = append(lines, rawLine{text: raw})
			break
		}
		text, eol := raw[:i], "\n"
		if strings.HasSuffix(text, "\r") {
			text, eol = text[:len(text)-1], "\r\n"
		}
		lines = append(lines, rawLine{text: text, eol: eol})
		raw = raw[i+1:]
	}
	return lines
}

func isBlank(s string) bool {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")) == ""
}

func isDigits(s string) bool {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type builder struct {
	doc    *Document
	nextID int
}

func (b *builder) meta(text, eol string) {
	b.doc.Elements = append(b.doc.Elements, Element{Kind: KindMetadata, Text: text, EOL: eol})
}

// text adds a segment; blank text has nothing to translate and stays metadata.
// Surrounding whitespace is split off as metadata so it survives translation.
func (b *builder) text(text, eol string) {
	if isBlank(text) {
		b.meta(text, eol)
		return
	}
	core := strings.TrimLeftFunc(text, unicode.IsSpace)
	if lead := text[:len(text)-len(core)]; lead != "" {
		b.meta(lead, "")
	}
	trimmed := strings.TrimRightFunc(core, unicode.IsSpace)
	trail := core[len(trimmed):]

	b.nextID++
	textEOL := eol
	if trail != "" {
		textEOL = ""
	}
	b.doc.Elements = append(b.doc.Elements, Element{
		Kind:      KindText,
		Text:      trimmed,
		SegmentID: b.nextID,
		EOL:       textEOL,
	})
	if trail != "" {
		b.meta(trail, eol)
	}
}

func (b *builder) metaLines(lines []rawLine) {
	for _, l := range lines {
		b.meta(l.text, l.eol)
	}
}

// blocks calls fn for each run of non-blank lines and emits blank lines as metadata.
// start is the 0-based index of the block's first line.
func blocks(b *builder, lines []rawLine, fn func(block []rawLine, start int) error) error {
	for i := 0; i < len(lines); {
		if isBlank(lines[i].text) {
			b.meta(lines[i].text, lines[i].eol)
			i++
			continue
		}
		j := i
		for j < len(lines) && !isBlank(lines[j].text) {
			j++
		}
		if err := fn(lines[i:j], i); err != nil {
			return err
		}
		i = j
	}
	return nil
}
