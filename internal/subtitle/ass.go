package subtitle

import "strings"

const (
	dialoguePrefix = "Dialogue:"
	assFieldCount  = 10
)

// parseASS translates only the free-text field of Dialogue rows.
// Everything else, including rows with too few fields, is kept verbatim.
func parseASS(b *builder, lines []rawLine) {
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimLeft(l.text, " \t\ufeff"), dialoguePrefix) {
			fields := strings.SplitN(l.text, ",", assFieldCount)
			if len(fields) == assFieldCount {
				text := fields[assFieldCount-1]
				b.meta(l.text[:len(l.text)-len(text)], "")
				b.text(text, l.eol)
				continue
			}
		}
		b.meta(l.text, l.eol)
	}
}
