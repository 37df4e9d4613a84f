package pipeline

import "fmt"

// RenderOptions controls the output video.
type RenderOptions struct {
	Width           int  `json:"width"`
	Height          int  `json:"height"`
	FPS             int  `json:"fps"`
	BackgroundAudio bool `json:"backgroundAudio"`
}

var (
	Resolution720p  = RenderOptions{Width: 1280, Height: 720}
	Resolution1080p = RenderOptions{Width: 1920, Height: 1080}
)

// SupportedFPS lists the accepted frame rates.
var SupportedFPS = []int{24, 30, 60}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Width:  Resolution720p.Width,
		Height: Resolution720p.Height,
		FPS:    30,
	}
}

func (o RenderOptions) Validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", o.Width, o.Height)
	}
	if o.Width%2 != 0 || o.Height%2 != 0 {
		return fmt.Errorf("resolution %dx%d must have even dimensions", o.Width, o.Height)
	}
	for _, fps := range SupportedFPS {
		if o.FPS == fps {
			return nil
		}
	}
	return fmt.Errorf("unsupported frame rate %d (want one of %v)", o.FPS, SupportedFPS)
}
