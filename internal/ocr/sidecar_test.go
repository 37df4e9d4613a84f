package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSidecar_Recognize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "001.png"), "png")
	writeFile(t, filepath.Join(dir, "001.txt"), "Hello. World!")
	writeFile(t, filepath.Join(dir, "002.jpg"), "jpg")
	writeFile(t, filepath.Join(dir, "002.jpg.txt"), "\ufeffSecond page")
	writeFile(t, filepath.Join(dir, "003.png"), "png")

	pages := []pipeline.Page{
		{ID: "page-1", Name: "001.png", Path: filepath.Join(dir, "001.png")},
		{ID: "page-2", Name: "002.jpg", Path: filepath.Join(dir, "002.jpg")},
		{ID: "page-3", Name: "003.png", Path: filepath.Join(dir, "003.png")},
	}

	var fractions []float64
	results, err := NewSidecar().Recognize(context.Background(), pages, func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	assert.Equal(t, []pipeline.OCRResult{
		{PageID: "page-1", Text: "Hello. World!"},
		{PageID: "page-2", Text: "Second page"},
		{PageID: "page-3", Text: ""},
	}, results)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 2.0 / 3, 1}, fractions, 1e-9)
}

func TestSidecar_RecognizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSidecar().Recognize(ctx, []pipeline.Page{{ID: "page-1", Path: "/nope.png"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
