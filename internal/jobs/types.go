package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

const (
	SourceManual = "manual"
	SourceCron   = "cron"
	SourceWatch  = "watch"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload describes one chapter to narrate: a directory of page images
// and where the video and subtitles go.
type JobPayload struct {
	PagesDir        string `json:"pages_dir"`
	OutputDir       string `json:"output_dir"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	FPS             int    `json:"fps,omitempty"`
	BackgroundAudio bool   `json:"background_audio,omitempty"`
	SubtitlesOnly   bool   `json:"subtitles_only,omitempty"`
}

type NarrationJob struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	DedupeKey    string     `json:"dedupe_key"`
	Payload      JobPayload `json:"payload"`
	Status       Status     `json:"status"`
	Stage        string     `json:"stage,omitempty"`
	Percent      int        `json:"percent"`
	VideoPath    string     `json:"video_path,omitempty"`
	SubtitlePath string     `json:"subtitle_path,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (j *NarrationJob) Terminal() bool {
	return j.Status == StatusSuccess || j.Status == StatusFailed
}
