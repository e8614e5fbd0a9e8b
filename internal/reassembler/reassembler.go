// Package reassembler maps engine responses back onto segments and renders
// the translated document.
package reassembler

import (
	"fmt"
	"strings"

	"github.com/MimeLyc/subflow/internal/chunker"
	"github.com/MimeLyc/subflow/internal/subtitle"
)

// BatchMismatchWarning reports a response whose line count differs from the
// number of lines sent, or that answered some lines with blank text. Lines are
// matched positionally: a shortfall leaves the trailing units untranslated, a
// surplus is dropped, and blank lines keep the source text.
type BatchMismatchWarning struct {
	BatchIndex int `json:"batch_index"`
	Expected   int `json:"expected"`
	Got        int `json:"got"`
	Blank      int `json:"blank,omitempty"`
}

func (w *BatchMismatchWarning) Error() string {
	if w.Expected == w.Got {
		return fmt.Sprintf("batch %d: %d of %d translated lines were blank", w.BatchIndex, w.Blank, w.Expected)
	}
	msg := fmt.Sprintf("batch %d: expected %d translated lines, got %d", w.BatchIndex, w.Expected, w.Got)
	if w.Blank > 0 {
		msg += fmt.Sprintf(" (%d blank)", w.Blank)
	}
	return msg
}

// Translations collects translated units per segment
type Translations struct {
	parts map[int][]string // segment id -> translated sub-chunks, "" when missing
	known map[int][]bool
}

func NewTranslations() *Translations {
	return &Translations{
		parts: make(map[int][]string),
		known: make(map[int][]bool),
	}
}

// Add zips lines onto the batch units and returns a warning when counts differ
// or a line came back blank. A blank line never replaces source text.
func (t *Translations) Add(batch chunker.Batch, lines []string) *BatchMismatchWarning {
	lines = trimTrailingEmpty(lines, len(batch.Units))

	blank := 0
	for i, unit := range batch.Units {
		if i >= len(lines) {
			break
		}
		if _, ok := t.parts[unit.SegmentID]; !ok {
			t.parts[unit.SegmentID] = make([]string, unit.Parts)
			t.known[unit.SegmentID] = make([]bool, unit.Parts)
		}
		if unit.Part >= len(t.parts[unit.SegmentID]) {
			continue
		}
		line := strings.TrimSpace(lines[i])
		if line == "" && strings.TrimSpace(unit.Text) != "" {
			blank++
			continue
		}
		t.parts[unit.SegmentID][unit.Part] = line
		t.known[unit.SegmentID][unit.Part] = true
	}

	if len(lines) != len(batch.Units) || blank > 0 {
		return &BatchMismatchWarning{BatchIndex: batch.Index, Expected: len(batch.Units), Got: len(lines), Blank: blank}
	}
	return nil
}

// BySegment joins sub-chunks. Segments with any missing sub-chunk are left out
// so they keep their source text.
func (t *Translations) BySegment() map[int]string {
	ret := make(map[int]string, len(t.parts))
	for id, parts := range t.parts {
		complete := true
		for _, ok := range t.known[id] {
			if !ok {
				complete = false
				break
			}
		}
		if complete {
			ret[id] = strings.Join(parts, " ")
		}
	}
	return ret
}

// Reassemble renders doc with the given translations. Metadata is emitted unchanged.
func Reassemble(doc *subtitle.Document, bySegment map[int]string) []byte {
	return doc.Render(bySegment)
}

// trimTrailingEmpty drops blank trailing lines beyond the expected count,
// which models often append
func trimTrailingEmpty(lines []string, expected int) []string {
	for len(lines) > expected && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
