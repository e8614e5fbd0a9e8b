package subtitle

import "strings"

// parseVTT treats timing lines and everything before them in a cue block
// (cue identifiers) as metadata. Blocks without timing (WEBVTT header, NOTE,
// STYLE, REGION) are metadata as a whole.
func parseVTT(b *builder, lines []rawLine) {
	_ = blocks(b, lines, func(block []rawLine, _ int) error {
		arrow := -1
		for i, l := range block {
			if strings.Contains(l.text, cueArrow) {
				arrow = i
				break
			}
		}
		if arrow < 0 {
			b.metaLines(block)
			return nil
		}
		b.metaLines(block[:arrow+1])
		for _, l := range block[arrow+1:] {
			b.text(l.text, l.eol)
		}
		return nil
	})
}
