package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp"}

// IsImage reports whether a path has a supported page image extension.
func IsImage(path string) bool {
	return slices.Contains(imageExts, strings.ToLower(filepath.Ext(path)))
}

// NewPages orders image paths by natural file-name order ("2" before "10")
// and assigns ids. The order is fixed from here on.
func NewPages(paths []string) []Page {
	sorted := slices.Clone(paths)
	SortNatural(sorted, filepath.Base)

	ret := make([]Page, 0, len(sorted))
	for i, p := range sorted {
		ret = append(ret, Page{
			ID:   fmt.Sprintf("page-%d", i+1),
			Name: filepath.Base(p),
			Path: p,
		})
	}
	return ret
}

// SortNatural sorts items using numeric-aware, case-insensitive collation of key(item).
func SortNatural[T any](items []T, key func(T) string) {
	c := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	slices.SortStableFunc(items, func(a, b T) int {
		ka, kb := key(a), key(b)
		if r := c.CompareString(ka, kb); r != 0 {
			return r
		}
		return strings.Compare(ka, kb)
	})
}

// LoadPagesDir ingests every image directly inside dir.
func LoadPagesDir(dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pages directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return NewPages(paths), nil
}
