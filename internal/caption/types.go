package caption

// Unit is one timed caption tied to a source page.
type Unit struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	DurationMs int    `json:"durationMs"`
	PageIndex  int    `json:"pageIndex"`
}

// Source is the recognized text of one page, in page order.
type Source struct {
	PageID string
	Text   string
}

const (
	// MinDurationMs is the floor applied to every user edit.
	MinDurationMs = 500

	// MinEstimatedMs and MaxEstimatedMs bound the reading-speed estimate.
	MinEstimatedMs = 1500
	MaxEstimatedMs = 7000

	// MsPerChar approximates a constant reading speed.
	MsPerChar = 60

	// PlaceholderDurationMs is used for page placeholders when no text was recognized at all.
	PlaceholderDurationMs = 2000
)
