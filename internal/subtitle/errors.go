package subtitle

import "fmt"

// UnsupportedFormatError is returned for file extensions without a parser
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "unsupported subtitle format: missing file extension"
	}
	return fmt.Sprintf("unsupported subtitle format %q (supported: .srt, .ass, .ssa, .vtt)", e.Ext)
}

// ParseError reports a structurally invalid block. Line is 1-based.
type ParseError struct {
	Format Format
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: line %d: %s", e.Format, e.Line, e.Reason)
}
