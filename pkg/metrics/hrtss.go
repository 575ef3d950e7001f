package metrics

import (
	"math"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

// HRTSSEstimator is the named fallback stress estimator used when a
// session has no power stream. It computes the Banister TRIMP of the
// heart-rate stream and normalizes it by the TRIMP of one hour held at
// threshold heart rate, scaled to 100 - so an hour at threshold scores
// 100, matching the power-based definition of training stress.
type HRTSSEstimator struct {
	MaxHR       float64
	RestHR      float64
	ThresholdHR float64
	Sex         string
}

const defaultRestHR = 60.0

// NewHRTSSEstimator derives the estimator from the athlete profile. Max
// heart rate is estimated as 220 minus age and resting heart rate
// defaults to 60 bpm; the profile provider does not carry either.
func NewHRTSSEstimator(profile *types.AthleteProfile, at time.Time) *HRTSSEstimator {
	return &HRTSSEstimator{
		MaxHR:       220 - float64(profile.Age(at)),
		RestHR:      defaultRestHR,
		ThresholdHR: profile.ThresholdHR,
		Sex:         profile.Sex,
	}
}

func (e *HRTSSEstimator) banisterB() float64 {
	if e.Sex == "female" {
		return 1.67
	}
	return 1.92
}

// TRIMP is the time-weighted Banister training impulse of the stream.
// Inter-sample gaps above gapCap contribute nothing.
func (e *HRTSSEstimator) TRIMP(hr []float64, ts []time.Time, gapCap time.Duration) float64 {
	hrRange := e.MaxHR - e.RestHR
	if hrRange <= 0 {
		return 0
	}
	b := e.banisterB()

	var total float64
	for i := 1; i < len(hr); i++ {
		delta := ts[i].Sub(ts[i-1])
		if delta <= 0 || delta > gapCap {
			continue
		}
		hrr := (hr[i] - e.RestHR) / hrRange
		if hrr < 0 {
			hrr = 0
		}
		if hrr > 1 {
			hrr = 1
		}
		total += delta.Minutes() * hrr * 0.64 * math.Exp(b*hrr)
	}
	return total
}

// Estimate returns the heart-rate training stress and the raw TRIMP.
// ok is false when the inputs cannot produce a score (no usable samples
// or a degenerate HR range) - callers must treat that as "unavailable",
// never as zero.
func (e *HRTSSEstimator) Estimate(hr []float64, ts []time.Time, gapCap time.Duration) (hrtss, trimp float64, ok bool) {
	hrRange := e.MaxHR - e.RestHR
	if hrRange <= 0 || e.ThresholdHR <= e.RestHR || len(hr) < 2 {
		return 0, 0, false
	}

	trimp = e.TRIMP(hr, ts, gapCap)
	if trimp <= 0 {
		return 0, 0, false
	}

	thrHRR := (e.ThresholdHR - e.RestHR) / hrRange
	if thrHRR > 1 {
		thrHRR = 1
	}
	hourAtThreshold := 60 * thrHRR * 0.64 * math.Exp(e.banisterB()*thrHRR)
	if hourAtThreshold <= 0 {
		return 0, 0, false
	}
	return trimp / hourAtThreshold * 100, trimp, true
}
