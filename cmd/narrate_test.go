package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNarrateCommand_SubtitlesOnlyWithSidecars(t *testing.T) {
	t.Setenv("OCR_PROVIDER", "sidecar")
	t.Setenv("PLANNING_PAUSE_MS", "0")

	pagesDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(pagesDir, "page1.png"), []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pagesDir, "page1.txt"), []byte("The city slept. Then the alarm rang!"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pagesDir, "page2.png"), []byte("img"), 0o644))

	root := newRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"narrate", pagesDir, "--out", outDir, "--srt-only",
	})
	require.NoError(t, root.Execute())

	assert.Contains(t, stdout.String(), "Captions:  2")
	assert.NotContains(t, stdout.String(), "Video:")

	srt, err := os.ReadFile(filepath.Join(outDir, "subtitles.srt"))
	require.NoError(t, err)
	assert.Contains(t, string(srt), "The city slept.")
	assert.Contains(t, string(srt), "Then the alarm rang!")
	assert.FileExists(t, filepath.Join(outDir, "motion.yaml"))
}

func TestNarrateCommand_RejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, os.WriteFile(file, []byte("img"), 0o644))

	root := newRootCommand()
	root.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "narrate", file})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestRecognizerName(t *testing.T) {
	assert.Equal(t, "sidecar", recognizerName(testOCR("sidecar", "")))
	assert.Equal(t, "vision:gpt-4o", recognizerName(testOCR("vision", "gpt-4o")))
}

func testOCR(provider, model string) config.OCRConfig {
	return config.OCRConfig{Provider: provider, Model: model}
}
