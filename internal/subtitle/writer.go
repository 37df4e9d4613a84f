package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/page-narrator/internal/caption"
)

// FromCaptions lays captions out back to back starting at zero.
func FromCaptions(units []caption.Unit) *File {
	lines := make([]Line, 0, len(units))
	var running time.Duration
	for i, u := range units {
		start := running
		end := start + time.Duration(u.DurationMs)*time.Millisecond
		running = end
		lines = append(lines, Line{
			Index:     i + 1,
			StartTime: start,
			EndTime:   end,
			Text:      u.Text,
		})
	}
	return &File{
		Lines:    lines,
		Language: detectLanguage(lines),
		Format:   "SRT",
	}
}

// Format serializes a file as SRT.
func Format(subtitle *File) []byte {
	var buf bytes.Buffer
	_ = Encode(&buf, subtitle)
	return buf.Bytes()
}

// Encode writes SRT cues: index, "HH:MM:SS,mmm --> HH:MM:SS,mmm", text and a
// blank separator line.
func Encode(w io.Writer, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	bw := bufio.NewWriter(w)
	for _, line := range subtitle.Lines {
		fmt.Fprintf(bw, "%d\n", line.Index)
		fmt.Fprintf(bw, "%s --> %s\n", formatDuration(line.StartTime), formatDuration(line.EndTime))
		fmt.Fprintf(bw, "%s\n\n", cueText(line.Text))
	}
	return bw.Flush()
}

// DefaultWriter is the default subtitle file writer
type DefaultWriter struct{}

func NewWriter() Writer {
	return &DefaultWriter{}
}

func (w *DefaultWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := Encode(file, subtitle); err != nil {
		return fmt.Errorf("failed to write subtitle file: %w", err)
	}
	return nil
}

// cueText drops blank and surrounding whitespace from each text line, since
// a blank line terminates a cue.
func cueText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r", ""), "\n")
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// formatDuration formats a duration as HH:MM:SS,mmm. Hours are not wrapped.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
