package reassembler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/subflow/internal/chunker"
	"github.com/MimeLyc/subflow/internal/subtitle"
)

func parse(t *testing.T, raw string, format subtitle.Format) *subtitle.Document {
	t.Helper()
	doc, err := subtitle.Parse([]byte(raw), format)
	require.NoError(t, err)
	return doc
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func TestOrderPreservedAcrossBatchGroupings(t *testing.T) {
	t.Parallel()

	raw := "1\n00:00:01,000 --> 00:00:02,000\nA1\n\n2\n00:00:03,000 --> 00:00:04,000\nB22\n\n3\n00:00:05,000 --> 00:00:06,000\nC333\n"
	want := strings.NewReplacer("A1", "1A", "B22", "22B", "C333", "333C").Replace(raw)

	for _, size := range []int{1, 2, 3, 10} {
		doc := parse(t, raw, subtitle.FormatSRT)
		batches, err := chunker.Chunk(doc.Segments(), size, 0)
		require.NoError(t, err)

		tr := NewTranslations()
		for _, b := range batches {
			var lines []string
			for _, u := range b.Units {
				lines = append(lines, reverse(u.Text))
			}
			assert.Nil(t, tr.Add(b, lines))
		}
		assert.Equal(t, want, string(Reassemble(doc, tr.BySegment())), "batch size %d", size)
	}
}

func TestShortfallKeepsOriginalAndWarns(t *testing.T) {
	t.Parallel()

	raw := "1\n00:00:01,000 --> 00:00:02,000\none\ntwo\nthree\n"
	doc := parse(t, raw, subtitle.FormatSRT)
	batches, err := chunker.Chunk(doc.Segments(), 3, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	tr := NewTranslations()
	warn := tr.Add(batches[0], []string{"un", "deux"})
	require.NotNil(t, warn)
	assert.Equal(t, BatchMismatchWarning{BatchIndex: 0, Expected: 3, Got: 2}, *warn)

	out := string(Reassemble(doc, tr.BySegment()))
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,000\nun\ndeux\nthree\n", out)
}

func TestSurplusLinesAreDiscarded(t *testing.T) {
	t.Parallel()

	doc := parse(t, "1\n00:00:01,000 --> 00:00:02,000\nHello\n", subtitle.FormatSRT)
	batches, err := chunker.Chunk(doc.Segments(), 5, 0)
	require.NoError(t, err)

	tr := NewTranslations()
	warn := tr.Add(batches[0], []string{"Bonjour", "extra", "noise"})
	require.NotNil(t, warn)
	assert.Equal(t, 3, warn.Got)
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,000\nBonjour\n", string(Reassemble(doc, tr.BySegment())))

	tr = NewTranslations()
	assert.Nil(t, tr.Add(batches[0], []string{"Bonjour", "", " "}), "trailing blank lines are not a mismatch")
}

func TestBlankLineKeepsSourceAndWarns(t *testing.T) {
	t.Parallel()

	raw := "1\n00:00:01,000 --> 00:00:02,000\none\ntwo\nthree\n\n2\n00:00:03,000 --> 00:00:04,000\nfour\n"
	doc := parse(t, raw, subtitle.FormatSRT)
	batches, err := chunker.Chunk(doc.Segments(), 4, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	tr := NewTranslations()
	warn := tr.Add(batches[0], []string{"A", "", "C", "D"})
	require.NotNil(t, warn)
	assert.Equal(t, BatchMismatchWarning{BatchIndex: 0, Expected: 4, Got: 4, Blank: 1}, *warn)
	assert.Equal(t, "batch 0: 1 of 4 translated lines were blank", warn.Error())

	out := string(Reassemble(doc, tr.BySegment()))
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,000\nA\ntwo\nC\n\n2\n00:00:03,000 --> 00:00:04,000\nD\n", out)
}

func TestSubChunksRejoined(t *testing.T) {
	t.Parallel()

	doc := parse(t, "Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,One sentence. Two sentence. Three!\n", subtitle.FormatASS)
	batches, err := chunker.Chunk(doc.Segments(), 2, 15)
	require.NoError(t, err)

	tr := NewTranslations()
	for _, b := range batches {
		var lines []string
		for _, u := range b.Units {
			lines = append(lines, strings.ToUpper(u.Text))
		}
		assert.Nil(t, tr.Add(b, lines))
	}

	out := string(Reassemble(doc, tr.BySegment()))
	assert.Equal(t, "Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,ONE SENTENCE. TWO SENTENCE. THREE!\n", out)
}

func TestMissingSubChunkKeepsWholeSegment(t *testing.T) {
	t.Parallel()

	doc := parse(t, "Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,One sentence. Two sentence.\n", subtitle.FormatASS)
	batches, err := chunker.Chunk(doc.Segments(), 10, 15)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	tr := NewTranslations()
	tr.Add(batches[0], []string{"UNE PHRASE."})

	assert.Empty(t, tr.BySegment())
	assert.Equal(t, "Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,One sentence. Two sentence.\n", string(Reassemble(doc, tr.BySegment())))
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "movie_fr.srt")

	require.NoError(t, WriteFile(path, []byte("first")))
	require.NoError(t, WriteFile(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteFileFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "taken")
	require.NoError(t, os.Mkdir(target, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep"), []byte("x"), 0644))

	err := WriteFile(target, []byte("data"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
