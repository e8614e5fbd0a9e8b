package subtitle

// Format identifies a subtitle file format
type Format string

const (
	FormatSRT Format = "srt"
	FormatASS Format = "ass"
	FormatVTT Format = "vtt"
)

// ElementKind tells whether an element is emitted verbatim or carries translatable text
type ElementKind int

const (
	KindMetadata ElementKind = iota
	KindText
)

func (k ElementKind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Element is one piece of a document. Rendering every element's Text followed by
// its EOL reproduces the original bytes.
type Element struct {
	Kind      ElementKind
	Text      string // verbatim content for metadata, source text for segments
	SegmentID int    // set for KindText only, starting at 1
	EOL       string // "\n", "\r\n" or "" (last line, or followed by more of the same line)
}

// Document is the ordered element sequence of one subtitle file.
// Element count and order never change after parsing.
type Document struct {
	Format   Format
	Elements []Element
}

// Segment is a translatable unit with a back-reference to its element position
type Segment struct {
	ID       int
	Text     string
	Position int
}
