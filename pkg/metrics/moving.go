package metrics

import (
	"time"

	shared "github.com/pulsetrack/recorder/pkg"
	"github.com/pulsetrack/recorder/pkg/types"
)

// movingTime sums the intervals where a motion-derived signal says the
// subject was moving: speed at or above MovingSpeedMS, or non-zero
// cadence when no speed stream exists. Intervals inside a pause (the
// paused marker stream) never count. With neither signal available the
// timer-level moving time accrued by the state machine is the best
// remaining estimate.
func (c *Computer) movingTime(strs map[string]*types.AggregatedStream, session *types.RecordingSession) float64 {
	paused := pausedIntervals(strs[shared.MetricPaused], session)

	if speed := strs[shared.MetricSpeed]; speed != nil && len(speed.Floats) > 1 {
		return c.accrue(speed, paused, func(v float64) bool { return v >= c.cfg.MovingSpeedMS })
	}
	if cadence := strs[shared.MetricCadence]; cadence != nil && len(cadence.Floats) > 1 {
		return c.accrue(cadence, paused, func(v float64) bool { return v > 0 })
	}
	return session.MovingSec
}

func (c *Computer) accrue(stream *types.AggregatedStream, paused []interval, moving func(float64) bool) float64 {
	var total float64
	for i := 1; i < len(stream.Floats); i++ {
		delta := stream.Timestamps[i].Sub(stream.Timestamps[i-1])
		if delta <= 0 || delta > c.cfg.GapCap {
			continue
		}
		if !moving(stream.Floats[i]) {
			continue
		}
		if inAnyInterval(stream.Timestamps[i], paused) {
			continue
		}
		total += delta.Seconds()
	}
	return total
}

type interval struct {
	start, end time.Time
}

// pausedIntervals reconstructs pause windows from the boolean marker
// stream. An unterminated pause runs to the session end.
func pausedIntervals(stream *types.AggregatedStream, session *types.RecordingSession) []interval {
	if stream == nil || len(stream.Bools) == 0 {
		return nil
	}
	var out []interval
	var openStart *time.Time
	for i, v := range stream.Bools {
		ts := stream.Timestamps[i]
		if v && openStart == nil {
			t := ts
			openStart = &t
		} else if !v && openStart != nil {
			out = append(out, interval{start: *openStart, end: ts})
			openStart = nil
		}
	}
	if openStart != nil && session.FinishedAt != nil {
		out = append(out, interval{start: *openStart, end: *session.FinishedAt})
	}
	return out
}

func inAnyInterval(t time.Time, intervals []interval) bool {
	for _, iv := range intervals {
		if !t.Before(iv.start) && !t.After(iv.end) {
			return true
		}
	}
	return false
}
