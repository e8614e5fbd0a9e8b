package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/subflow/internal/subtitle"
)

func makeSegments(n int) []subtitle.Segment {
	segs := make([]subtitle.Segment, n)
	for i := range segs {
		segs[i] = subtitle.Segment{ID: i + 1, Text: fmt.Sprintf("line %d", i+1), Position: i * 3}
	}
	return segs
}

func TestChunkBatchCount(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ n, k int }{
		{0, 20}, {1, 20}, {20, 20}, {21, 20}, {45, 20}, {7, 3}, {9, 1},
	} {
		batches, err := Chunk(makeSegments(tc.n), tc.k, 0)
		require.NoError(t, err)

		want := (tc.n + tc.k - 1) / tc.k
		assert.Len(t, batches, want, "n=%d k=%d", tc.n, tc.k)

		next := 1
		for i, b := range batches {
			assert.Equal(t, i, b.Index)
			assert.LessOrEqual(t, b.Len(), tc.k)
			for _, u := range b.Units {
				assert.Equal(t, next, u.SegmentID)
				next++
			}
		}
		assert.Equal(t, tc.n+1, next)
	}
}

func TestChunkRejectsNonPositiveBatchSize(t *testing.T) {
	t.Parallel()

	_, err := Chunk(makeSegments(3), 0, 100)
	require.Error(t, err)
}

func TestChunkSplitsLongSegmentAtSentences(t *testing.T) {
	t.Parallel()

	long := "First sentence here. Second one is excited! Is this the third? Yes."
	segs := []subtitle.Segment{
		{ID: 1, Text: "short"},
		{ID: 2, Text: long},
		{ID: 3, Text: "tail"},
	}

	batches, err := Chunk(segs, 20, 25)
	require.NoError(t, err)

	var units []Unit
	for _, b := range batches {
		assert.LessOrEqual(t, utf8.RuneCountInString(b.Text()), 25)
		units = append(units, b.Units...)
	}

	var parts []string
	for _, u := range units {
		if u.SegmentID == 2 {
			parts = append(parts, u.Text)
			assert.Equal(t, len(parts)-1, u.Part)
		}
	}
	require.Greater(t, len(parts), 1)
	assert.Equal(t, "First sentence here.", parts[0])
	assert.Equal(t, long, strings.Join(parts, " "))
	for _, u := range units {
		if u.SegmentID == 2 {
			assert.Equal(t, len(parts), u.Parts)
		}
	}
	assert.Equal(t, 3, units[len(units)-1].SegmentID)
}

func TestChunkHardSplitsSentenceWithoutPunctuation(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 30)
	batches, err := Chunk([]subtitle.Segment{{ID: 1, Text: text}}, 5, 20)
	require.NoError(t, err)

	total := 0
	for _, b := range batches {
		assert.LessOrEqual(t, b.Len(), 5)
		for _, u := range b.Units {
			assert.LessOrEqual(t, utf8.RuneCountInString(u.Text), 20)
			total++
		}
	}
	assert.Greater(t, total, 1)
}

func TestBatchText(t *testing.T) {
	t.Parallel()

	b := Batch{Units: []Unit{{Text: "a"}, {Text: "b"}, {Text: "c"}}}
	assert.Equal(t, "a\nb\nc", b.Text())
	assert.Equal(t, 3, b.Len())
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"Wait...", "What?!", "ok"}, SplitSentences("Wait... What?! ok"))
	assert.Equal(t, []string{"no punctuation"}, SplitSentences("no punctuation"))
	assert.Empty(t, SplitSentences("   "))
}
