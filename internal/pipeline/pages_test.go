package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPages_NaturalOrder(t *testing.T) {
	pages := NewPages([]string{
		"/ch1/page10.png",
		"/ch1/page2.png",
		"/ch1/Page1.png",
		"/ch1/page11.jpg",
	})

	names := make([]string, 0, len(pages))
	for _, p := range pages {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Page1.png", "page2.png", "page10.png", "page11.jpg"}, names)
	assert.Equal(t, "page-1", pages[0].ID)
	assert.Equal(t, "/ch1/Page1.png", pages[0].Path)
}

func TestLoadPagesDir_SkipsNonImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"3.png", "12.jpeg", "1.webp", "notes.txt", "3.png.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "9.png"), 0o755))

	pages, err := LoadPagesDir(dir)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "1.webp", pages[0].Name)
	assert.Equal(t, "3.png", pages[1].Name)
	assert.Equal(t, "12.jpeg", pages[2].Name)
}

func TestLoadPagesDir_MissingDir(t *testing.T) {
	_, err := LoadPagesDir(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
