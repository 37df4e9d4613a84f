package caption

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// EstimateDuration returns the display duration of a caption in milliseconds.
func EstimateDuration(text string) int {
	chars := utf8.RuneCountInString(text)
	ms := int(math.Round(float64(MsPerChar * chars)))
	return min(max(ms, MinEstimatedMs), MaxEstimatedMs)
}

// ClampDuration applies the edit floor.
func ClampDuration(ms int) int {
	return max(ms, MinDurationMs)
}

// ParseDurationInput converts user input to a duration. Non-numeric input is
// treated as 0 before the floor is applied.
func ParseDurationInput(raw string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return ClampDuration(0)
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return ClampDuration(int(math.Round(v)))
}
