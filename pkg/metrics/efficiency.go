package metrics

import (
	"log/slog"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

// computeCoupled fills the metrics that need power and heart rate
// together: efficiency factor, aerobic decoupling and the power:HR
// ratio. They are computed over the temporal overlap of the two streams;
// streams that never overlap for at least MinOverlap leave all three
// unavailable rather than producing a fabricated ratio.
func (c *Computer) computeCoupled(logger *slog.Logger, summary *types.ActivitySummary, power, hr *types.AggregatedStream) {
	if power == nil || hr == nil || len(power.Floats) == 0 || len(hr.Floats) == 0 {
		return
	}

	start := laterOf(power.Timestamps[0], hr.Timestamps[0])
	end := earlierOf(power.Timestamps[len(power.Timestamps)-1], hr.Timestamps[len(hr.Timestamps)-1])
	if end.Sub(start) < c.cfg.MinOverlap {
		logger.Debug("coupled metrics unavailable: power and heart rate overlap too short",
			"overlap_sec", end.Sub(start).Seconds())
		return
	}

	avgPower, pn := meanInWindow(power.Floats, power.Timestamps, start, end)
	avgHR, hn := meanInWindow(hr.Floats, hr.Timestamps, start, end)
	if pn == 0 || hn == 0 || avgHR <= 0 {
		return
	}

	summary.PowerHRRatio = ptr(avgPower / avgHR)
	np := NormalizedPower(windowSlice(power.Floats, power.Timestamps, start, end), c.cfg.NPWindow)
	summary.EfficiencyFactor = ptr(np / avgHR)

	// Decoupling: drift of the power/HR relationship between the first
	// and second half of the overlap, as a percentage of the first half.
	mid := start.Add(end.Sub(start) / 2)
	p1, n1 := meanInWindow(power.Floats, power.Timestamps, start, mid)
	h1, m1 := meanInWindow(hr.Floats, hr.Timestamps, start, mid)
	p2, n2 := meanInWindow(power.Floats, power.Timestamps, mid, end)
	h2, m2 := meanInWindow(hr.Floats, hr.Timestamps, mid, end)
	if n1 == 0 || m1 == 0 || n2 == 0 || m2 == 0 || h1 <= 0 || h2 <= 0 {
		return
	}
	ef1 := p1 / h1
	ef2 := p2 / h2
	if ef1 <= 0 {
		return
	}
	summary.DecouplingPct = ptr((ef1 - ef2) / ef1 * 100)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func meanInWindow(vals []float64, ts []time.Time, start, end time.Time) (mean float64, n int) {
	var sum float64
	for i, t := range ts {
		if t.Before(start) || t.After(end) {
			continue
		}
		sum += vals[i]
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func windowSlice(vals []float64, ts []time.Time, start, end time.Time) []float64 {
	out := make([]float64, 0, len(vals))
	for i, t := range ts {
		if t.Before(start) || t.After(end) {
			continue
		}
		out = append(out, vals[i])
	}
	return out
}
