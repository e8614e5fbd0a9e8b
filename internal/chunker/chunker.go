// Package chunker groups subtitle segments into engine-sized batches.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MimeLyc/subflow/internal/subtitle"
)

// DefaultMaxChars bounds a batch payload when the caller does not choose a limit
const DefaultMaxChars = 2000

// Unit is one line sent to an engine. Segments longer than maxChars are
// split into several units sharing the same SegmentID.
type Unit struct {
	SegmentID int
	Part      int // 0-based
	Parts     int
	Text      string
}

// Batch is one engine call worth of units, in document order
type Batch struct {
	Index int
	Units []Unit
}

// Text joins the unit texts with newlines, one unit per line
func (b Batch) Text() string {
	lines := make([]string, len(b.Units))
	for i, u := range b.Units {
		lines[i] = u.Text
	}
	return strings.Join(lines, "\n")
}

// Len returns the number of lines the engine is expected to return
func (b Batch) Len() int {
	return len(b.Units)
}

// Chunk groups segments in order into batches of at most batchSize units.
// A batch is also closed early when adding a unit would push its text past maxChars.
func Chunk(segments []subtitle.Segment, batchSize, maxChars int) ([]Batch, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be greater than 0, got %d", batchSize)
	}
	if maxChars < 1 {
		maxChars = DefaultMaxChars
	}

	var (
		batches []Batch
		current []Unit
		size    int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, Batch{Index: len(batches), Units: current})
		current = nil
		size = 0
	}

	for _, seg := range segments {
		for _, u := range splitSegment(seg, maxChars) {
			n := utf8.RuneCountInString(u.Text)
			added := n
			if len(current) > 0 {
				added++ // newline separator
			}
			if len(current) >= batchSize || (len(current) > 0 && size+added > maxChars) {
				flush()
				added = n
			}
			current = append(current, u)
			size += added
		}
	}
	flush()

	return batches, nil
}

func splitSegment(seg subtitle.Segment, maxChars int) []Unit {
	if utf8.RuneCountInString(seg.Text) <= maxChars {
		return []Unit{{SegmentID: seg.ID, Part: 0, Parts: 1, Text: seg.Text}}
	}

	parts := packSentences(SplitSentences(seg.Text), maxChars)
	units := make([]Unit, len(parts))
	for i, p := range parts {
		units[i] = Unit{SegmentID: seg.ID, Part: i, Parts: len(parts), Text: p}
	}
	return units
}

// SplitSentences splits text after '.', '!' and '?' runs. Each returned
// sentence is trimmed; empty pieces are dropped.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isSentenceEnd(runes[i+1]) {
			i++
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// packSentences merges consecutive sentences while they fit in maxChars and
// hard-splits any sentence that is longer on its own.
func packSentences(sentences []string, maxChars int) []string {
	var (
		out []string
		cur string
	)
	for _, s := range sentences {
		for _, piece := range hardSplit(s, maxChars) {
			if cur == "" {
				cur = piece
				continue
			}
			if utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(piece) <= maxChars {
				cur += " " + piece
				continue
			}
			out = append(out, cur)
			cur = piece
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// hardSplit cuts s into pieces of at most maxChars runes, preferring the last space
func hardSplit(s string, maxChars int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > maxChars {
		cut := maxChars
		for i := maxChars; i > maxChars/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		out = append(out, piece)
	}
	return out
}
