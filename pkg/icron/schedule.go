package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

var lookbacks = []time.Duration{
	time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
	31 * 24 * time.Hour,
	366 * 24 * time.Hour,
}

// GetTriggerInfo resolves the previous and next activation of a standard
// five-field cron expression around refTime. Last stays zero when the
// expression did not fire within the past year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)

	for _, lookback := range lookbacks {
		var last time.Time
		for t := schedule.Next(refTime.Add(-lookback)); !t.IsZero() && !t.After(refTime); t = schedule.Next(t) {
			last = t
		}
		if !last.IsZero() {
			info.Last = last
			info.TimeSinceLast = refTime.Sub(last)
			break
		}
	}

	return info, nil
}
