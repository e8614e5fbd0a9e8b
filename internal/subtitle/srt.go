package subtitle

import "strings"

const cueArrow = "-->"

// parseSRT handles [index, timestamp, text...] blocks separated by blank lines
func parseSRT(b *builder, lines []rawLine) error {
	return blocks(b, lines, func(block []rawLine, start int) error {
		if len(block) < 3 {
			b.metaLines(block)
			return nil
		}

		textStart := 0
		switch {
		case strings.Contains(block[1].text, cueArrow):
			textStart = 2
		case strings.Contains(block[0].text, cueArrow):
			// cue without an index line
			textStart = 1
		default:
			return &ParseError{
				Format: FormatSRT,
				Line:   start + 2,
				Reason: "expected a timestamp line containing \"-->\"",
			}
		}

		b.metaLines(block[:textStart])
		for _, l := range block[textStart:] {
			if isDigits(l.text) {
				b.meta(l.text, l.eol)
				continue
			}
			b.text(l.text, l.eol)
		}
		return nil
	})
}
