package ocr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/pkg/file"
)

// Sidecar recognizes pages from pre-transcribed text files stored next to
// each image: page01.png is read from page01.txt, falling back to
// page01.png.txt. A page without a sidecar has empty text.
type Sidecar struct{}

func NewSidecar() *Sidecar {
	return &Sidecar{}
}

func (s *Sidecar) Recognize(ctx context.Context, pages []pipeline.Page, progress pipeline.ProgressFunc) ([]pipeline.OCRResult, error) {
	results := make([]pipeline.OCRResult, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := readSidecar(page.Path)
		if err != nil {
			return nil, fmt.Errorf("read sidecar for %s: %w", page.Name, err)
		}
		results = append(results, pipeline.OCRResult{PageID: page.ID, Text: text})

		if progress != nil {
			progress(float64(i+1) / float64(len(pages)))
		}
	}
	return results, nil
}

func sidecarPaths(imagePath string) []string {
	return []string{file.ReplaceExt(imagePath, ".txt"), imagePath + ".txt"}
}

func readSidecar(imagePath string) (string, error) {
	for _, candidate := range sidecarPaths(imagePath) {
		data, err := os.ReadFile(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}
	return "", nil
}
