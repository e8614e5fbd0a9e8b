package file

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// FindRecentAfter walks dir and returns regular files modified after startTime.
// When exts is non-empty only files with one of those extensions (case-insensitive,
// with leading dot) are returned.
func FindRecentAfter(dir string, startTime time.Time, exts ...string) ([]string, error) {
	var recentFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !info.ModTime().After(startTime) {
			return nil
		}
		if len(exts) > 0 && !slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		recentFiles = append(recentFiles, path)
		return nil
	})

	return recentFiles, err
}
