package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// DefaultFileName is the export name of the caption track.
const DefaultFileName = "subtitles.srt"

// Reader reads a subtitle document.
type Reader interface {
	Read() (*File, error)
}

// Writer writes a subtitle document to a path.
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line is one numbered, timed cue.
type Line struct {
	Index     int           `json:"index"`
	StartTime time.Duration `json:"start_time"`
	EndTime   time.Duration `json:"end_time"`
	Text      string        `json:"text"`
}

// File is a whole subtitle document.
type File struct {
	Lines    []Line
	Language language.Tag
	Format   string // e.g. SRT
	Path     string
}
