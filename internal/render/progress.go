package render

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
)

// progressWriter parses the key=value stream of "ffmpeg -progress pipe:1"
// and reports out_time as a fraction of the expected duration.
type progressWriter struct {
	totalMs  int
	progress pipeline.ProgressFunc
	buf      bytes.Buffer
	last     float64
}

func newProgressWriter(totalMs int, progress pipeline.ProgressFunc) *progressWriter {
	return &progressWriter{totalMs: totalMs, progress: progress}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.handle(strings.TrimSpace(line))
	}
	return len(p), nil
}

func (w *progressWriter) handle(line string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	switch key {
	case "out_time_us":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || w.totalMs <= 0 {
			return
		}
		w.report(float64(us) / 1000 / float64(w.totalMs))
	case "progress":
		if value == "end" {
			w.report(1)
		}
	}
}

func (w *progressWriter) report(fraction float64) {
	if fraction > 1 {
		fraction = 1
	}
	if fraction <= w.last {
		return
	}
	w.last = fraction
	if w.progress != nil {
		w.progress(fraction)
	}
}
