package motion

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MimeLyc/page-narrator/internal/caption"
	"gopkg.in/yaml.v3"
)

const planVersion = "1"

// Plan is the camera scenario for a whole video.
type Plan struct {
	Version string  `yaml:"version" json:"version"`
	Slides  []Slide `yaml:"slides" json:"slides"`
}

// Slide is one run of consecutive captions shown over the same page.
type Slide struct {
	PageIndex  int        `yaml:"page_index" json:"pageIndex"`
	PageID     string     `yaml:"page_id" json:"pageId"`
	Input      string     `yaml:"input" json:"input"`
	StartMs    int        `yaml:"start_ms" json:"startMs"`
	DurationMs int        `yaml:"duration_ms" json:"durationMs"`
	Keyframes  []Keyframe `yaml:"keyframes" json:"keyframes"`
}

// Keyframe is a camera position at an offset into the slide. FocusX and
// FocusY are fractions of the page size (0.5, 0.5 is the center).
type Keyframe struct {
	TimeMs int     `yaml:"time_ms" json:"timeMs"`
	Zoom   float64 `yaml:"zoom" json:"zoom"`
	FocusX float64 `yaml:"focus_x" json:"focusX"`
	FocusY float64 `yaml:"focus_y" json:"focusY"`
}

// Page is the planner's view of a source page.
type Page struct {
	ID   string
	Path string
}

func (p Plan) TotalDurationMs() int {
	total := 0
	for _, s := range p.Slides {
		total += s.DurationMs
	}
	return total
}

// WriteFile stores the plan as a YAML scenario.
func WriteFile(path string, plan Plan) error {
	content, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal motion plan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plan directory: %w", err)
	}
	return os.WriteFile(path, content, 0o644)
}

func ReadFile(path string) (Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, err
	}
	var plan Plan
	if err := yaml.Unmarshal(content, &plan); err != nil {
		return Plan{}, fmt.Errorf("invalid motion plan: %w", err)
	}
	return plan, nil
}

// Planner computes slow zoom-and-pan camera motion for each slide.
type Planner struct {
	MaxZoom float64
}

func NewPlanner() *Planner {
	return &Planner{MaxZoom: 1.15}
}

// Plan groups consecutive captions on the same page into slides. Pages
// without captions get no slide, so the plan's timeline matches the
// subtitle timeline exactly.
func (p *Planner) Plan(pages []Page, units []caption.Unit) Plan {
	maxZoom := p.MaxZoom
	if maxZoom < 1 {
		maxZoom = 1
	}

	plan := Plan{Version: planVersion, Slides: make([]Slide, 0)}
	start := 0
	for _, u := range units {
		n := len(plan.Slides)
		if n > 0 && plan.Slides[n-1].PageIndex == u.PageIndex {
			plan.Slides[n-1].DurationMs += u.DurationMs
			start += u.DurationMs
			continue
		}

		slide := Slide{
			PageIndex:  u.PageIndex,
			StartMs:    start,
			DurationMs: u.DurationMs,
		}
		if u.PageIndex >= 0 && u.PageIndex < len(pages) {
			slide.PageID = pages[u.PageIndex].ID
			slide.Input = pages[u.PageIndex].Path
		}
		plan.Slides = append(plan.Slides, slide)
		start += u.DurationMs
	}

	for i := range plan.Slides {
		plan.Slides[i].Keyframes = keyframes(i, plan.Slides[i].DurationMs, maxZoom)
	}
	return plan
}

// keyframes alternates the drift direction between slides: even slides
// settle toward the top of the page, odd slides toward the bottom.
func keyframes(slide, durationMs int, maxZoom float64) []Keyframe {
	endY := 0.35
	if slide%2 == 1 {
		endY = 0.65
	}
	return []Keyframe{
		{TimeMs: 0, Zoom: 1, FocusX: 0.5, FocusY: 0.5},
		{TimeMs: durationMs, Zoom: maxZoom, FocusX: 0.5, FocusY: endY},
	}
}
