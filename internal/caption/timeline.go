package caption

import (
	"errors"
	"fmt"
)

var ErrUnitNotFound = errors.New("caption unit not found")

// Build composes segmentation and duration estimation across all pages.
// When no page yields any caption, one placeholder per page is emitted so a
// non-empty page set always produces a non-empty timeline.
func Build(sources []Source) []Unit {
	ret := make([]Unit, 0)
	for pageIndex, src := range sources {
		for i, text := range Segment(src.Text) {
			ret = append(ret, Unit{
				ID:         fmt.Sprintf("%s-%d", src.PageID, i),
				Text:       text,
				DurationMs: EstimateDuration(text),
				PageIndex:  pageIndex,
			})
		}
	}
	if len(ret) > 0 {
		return ret
	}

	for pageIndex, src := range sources {
		ret = append(ret, Unit{
			ID:         fmt.Sprintf("%s-0", src.PageID),
			Text:       fmt.Sprintf("Page %d", pageIndex+1),
			DurationMs: PlaceholderDurationMs,
			PageIndex:  pageIndex,
		})
	}
	return ret
}

// Timeline is an immutable, versioned snapshot of caption units.
// Edits return a new snapshot and never modify the receiver.
type Timeline struct {
	Version uint64 `json:"version"`
	Units   []Unit `json:"units"`
}

func NewTimeline(units []Unit) Timeline {
	return Timeline{Version: 1, Units: cloneUnits(units)}
}

func (t Timeline) Len() int {
	return len(t.Units)
}

// TotalDurationMs is the end time of the last caption.
func (t Timeline) TotalDurationMs() int {
	total := 0
	for _, u := range t.Units {
		total += u.DurationMs
	}
	return total
}

// Snapshot returns a copy of the units safe for the caller to keep.
func (t Timeline) Snapshot() []Unit {
	return cloneUnits(t.Units)
}

func (t Timeline) WithText(id, text string) (Timeline, error) {
	return t.with(id, func(u *Unit) { u.Text = text })
}

// WithDuration sets a caption's duration, clamped to MinDurationMs.
func (t Timeline) WithDuration(id string, ms int) (Timeline, error) {
	return t.with(id, func(u *Unit) { u.DurationMs = ClampDuration(ms) })
}

func (t Timeline) with(id string, edit func(*Unit)) (Timeline, error) {
	idx := t.indexOf(id)
	if idx < 0 {
		return t, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	units := cloneUnits(t.Units)
	edit(&units[idx])
	return Timeline{Version: t.Version + 1, Units: units}, nil
}

func (t Timeline) indexOf(id string) int {
	for i, u := range t.Units {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func cloneUnits(units []Unit) []Unit {
	if units == nil {
		return nil
	}
	ret := make([]Unit, len(units))
	copy(ret, units)
	return ret
}
