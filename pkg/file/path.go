package file

import (
	"path/filepath"
	"strings"
)

// Stem returns the file name without directory and last extension.
// A leading dot (hidden file) is not treated as an extension separator.
func Stem(path string) string {
	filename := filepath.Base(path)
	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filename
	}
	return filename[:lastDot]
}

// Ext returns the extension of path including the dot, or "" for dotfiles.
func Ext(path string) string {
	filename := filepath.Base(path)
	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return ""
	}
	return filename[lastDot:]
}

// InsertSuffix places suffix between the stem and the extension:
// ("/a/movie.srt", "_fr") -> "/a/movie_fr.srt".
func InsertSuffix(path, suffix string) string {
	if path == "" {
		return path
	}
	return filepath.Join(filepath.Dir(path), Stem(path)+suffix+Ext(path))
}
