package pipeline

import "math"

// Stage checkpoints. Fraction-driven stages map into [base, base+span].
const (
	recognizeSpan       = 25
	timelineCheckpoint  = 50
	motionCheckpoint    = 65
	renderBase          = 70
	renderSpan          = 30
	completedCheckpoint = 100
)

// Percent maps a stage-local fraction to overall pipeline progress.
// Fractions outside [0, 1] are clamped.
func Percent(stage Stage, fraction float64) int {
	f := clampFraction(fraction)
	switch stage {
	case StageRecognizing:
		return int(math.Round(recognizeSpan * f))
	case StageBuildingTimeline:
		return timelineCheckpoint
	case StagePlanningMotion, StageReadyToRender:
		return motionCheckpoint
	case StageRendering:
		return renderBase + int(math.Round(renderSpan*f))
	case StageCompleted:
		return completedCheckpoint
	default:
		return 0
	}
}

func clampFraction(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// advancePercent never lets percent go down within a run.
func advancePercent(current, next int) int {
	next = min(next, completedCheckpoint)
	return max(current, next)
}
