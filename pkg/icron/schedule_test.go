package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo(t *testing.T) {
	ref := time.Date(2026, 3, 10, 10, 7, 0, 0, time.UTC)

	info, err := GetTriggerInfo("*/30 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 23*time.Minute, info.TimeUntilNext)
	assert.Equal(t, 7*time.Minute, info.TimeSinceLast)
}

func TestGetTriggerInfo_Daily(t *testing.T) {
	ref := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 3 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC), info.Last)
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("not a cron", time.Now())
	assert.Error(t, err)
}
