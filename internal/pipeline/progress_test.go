package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent_Recognizing(t *testing.T) {
	got := make([]int, 0, 3)
	for _, f := range []float64{0, 0.4, 1.0} {
		got = append(got, Percent(StageRecognizing, f))
	}
	assert.Equal(t, []int{0, 10, 25}, got)
}

func TestPercent_Rendering(t *testing.T) {
	assert.Equal(t, 70, Percent(StageRendering, 0))
	assert.Equal(t, 85, Percent(StageRendering, 0.5))
	assert.Equal(t, 100, Percent(StageRendering, 1))
}

func TestPercent_Checkpoints(t *testing.T) {
	assert.Equal(t, 50, Percent(StageBuildingTimeline, 0.3))
	assert.Equal(t, 65, Percent(StagePlanningMotion, 0))
	assert.Equal(t, 100, Percent(StageCompleted, 0))
	assert.Equal(t, 0, Percent(StageIdle, 1))

	ordered := []int{
		Percent(StageRecognizing, 1),
		Percent(StageBuildingTimeline, 1),
		Percent(StagePlanningMotion, 1),
		Percent(StageRendering, 0),
		Percent(StageRendering, 1),
	}
	assert.IsNonDecreasing(t, ordered)
}

func TestPercent_ClampsFraction(t *testing.T) {
	assert.Equal(t, 0, Percent(StageRecognizing, -1))
	assert.Equal(t, 25, Percent(StageRecognizing, 3))
	assert.Equal(t, 70, Percent(StageRendering, math.NaN()))
}

func TestPercent_MonotonicWithinStage(t *testing.T) {
	for _, stage := range []Stage{StageRecognizing, StageRendering} {
		prev := -1
		for i := 0; i <= 100; i++ {
			p := Percent(stage, float64(i)/100)
			assert.GreaterOrEqual(t, p, prev)
			prev = p
		}
	}
}

func TestAdvancePercent(t *testing.T) {
	assert.Equal(t, 50, advancePercent(50, 20))
	assert.Equal(t, 60, advancePercent(50, 60))
	assert.Equal(t, 100, advancePercent(90, 140))
}
