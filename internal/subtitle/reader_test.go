package subtitle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestDetectLanguage(t *testing.T) {
	lines := []Line{
		{Text: "Hello, world!"},
		{Text: "こんにちは、世界!"},
		{Text: "こんにちは、世界!"},
		{Text: "Привет, мир!"},
	}
	assert.Equal(t, "ja", detectLanguage(lines).String())
	assert.Equal(t, language.Und, detectLanguage(nil))
}

func TestReadSRTBytes(t *testing.T) {
	data := []byte("1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:03,000 --> 00:00:04,500\nWorld\nagain\n")

	file, err := ReadSRTBytes(data, "embedded://sample")
	require.NoError(t, err)
	require.Len(t, file.Lines, 2)
	assert.Equal(t, "Hello", file.Lines[0].Text)
	assert.Equal(t, "World\nagain", file.Lines[1].Text)
	assert.Equal(t, 4500*time.Millisecond, file.Lines[1].EndTime)
	assert.Equal(t, "SRT", file.Format)
	assert.Equal(t, "embedded://sample", file.Path)
}

func TestReadSRTBytes_CRLFAndLargeHours(t *testing.T) {
	data := []byte("\ufeff1\r\n123:04:05,006 --> 123:04:06,000\r\nLate\r\n\r\n")

	file, err := ReadSRTBytes(data, "")
	require.NoError(t, err)
	require.Len(t, file.Lines, 1)
	assert.Equal(t, 123*time.Hour+4*time.Minute+5*time.Second+6*time.Millisecond, file.Lines[0].StartTime)
	assert.Equal(t, "Late", file.Lines[0].Text)
}

func TestReadSRTBytes_InvalidTime(t *testing.T) {
	_, err := ReadSRTBytes([]byte("1\nnot a time\nx\n"), "")
	require.Error(t, err)
}

func TestReader_Read(t *testing.T) {
	dir := t.TempDir()

	_, err := NewReader(filepath.Join(dir, "subs.vtt")).Read()
	require.Error(t, err)

	_, err = NewReader(filepath.Join(dir, "missing.srt")).Read()
	require.Error(t, err)

	path := filepath.Join(dir, "subs.srt")
	require.NoError(t, os.WriteFile(path, []byte("1\n00:00:00,000 --> 00:00:01,500\nA\n\n"), 0o644))
	file, err := NewReader(path).Read()
	require.NoError(t, err)
	require.Len(t, file.Lines, 1)
	assert.Equal(t, path, file.Path)
}
