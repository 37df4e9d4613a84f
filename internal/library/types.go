package library

// Chapter is one directory of page images in the inbox.
type Chapter struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Series       string `json:"series"`
	PagesDir     string `json:"pages_dir"`
	PageCount    int    `json:"page_count"`
	OutputDir    string `json:"output_dir"`
	VideoPath    string `json:"video_path,omitempty"`
	SubtitlePath string `json:"subtitle_path,omitempty"`
	// Narrated is set once subtitles exist in the output directory.
	Narrated bool `json:"narrated"`
}

type Library struct {
	InboxDir string    `json:"inbox_dir"`
	Chapters []Chapter `json:"chapters"`
}

// Pending returns the chapters that have pages but no narration yet.
func (l *Library) Pending() []Chapter {
	ret := make([]Chapter, 0)
	for _, ch := range l.Chapters {
		if ch.PageCount > 0 && !ch.Narrated {
			ret = append(ret, ch)
		}
	}
	return ret
}
