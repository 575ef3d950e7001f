// Package metrics derives the activity summary from aggregated streams
// and the athlete profile. Every derived metric is guarded: a missing or
// invalid input makes that one metric unavailable (nil in the summary),
// it never fabricates a number and never aborts the whole computation.
package metrics

import (
	"log/slog"
	"time"

	shared "github.com/pulsetrack/recorder/pkg"
	"github.com/pulsetrack/recorder/pkg/types"
)

// Config holds the documented tunables of the computation.
type Config struct {
	// MovingSpeedMS is the speed at or above which the subject counts as
	// moving. Below it the sample is stationary.
	MovingSpeedMS float64
	// GapCap zeroes inter-sample deltas larger than this, so recording
	// gaps do not inflate time-weighted sums.
	GapCap time.Duration
	// NPWindow is the rolling-window length in samples for normalized
	// power, assuming roughly one sample per second.
	NPWindow int
	// ElevationNoiseM is the hysteresis floor below which altitude
	// changes count as sensor jitter, not real ascent or descent.
	ElevationNoiseM float64
	// MinOverlap is the minimum temporal overlap between power and HR
	// before coupled metrics (EF, decoupling, power:HR) are computed.
	MinOverlap time.Duration
}

func DefaultConfig() Config {
	return Config{
		MovingSpeedMS:   0.5,
		GapCap:          10 * time.Minute,
		NPWindow:        30,
		ElevationNoiseM: 1.0,
		MinOverlap:      2 * time.Minute,
	}
}

type Computer struct {
	cfg Config
}

func NewComputer(cfg Config) *Computer {
	return &Computer{cfg: cfg}
}

func ptr(v float64) *float64 { return &v }

// Compute derives the full summary. It requires a finished session with
// both start and end timestamps; everything beyond that is best-effort
// per metric.
func (c *Computer) Compute(logger *slog.Logger, profile *types.AthleteProfile, strs map[string]*types.AggregatedStream, session *types.RecordingSession) (*types.ActivitySummary, error) {
	if session.State != types.SessionFinished {
		return nil, &types.ValidationError{Field: "state", Reason: "metrics require a finished session"}
	}
	if session.StartedAt == nil || session.FinishedAt == nil {
		return nil, &types.ValidationError{Field: "timestamps", Reason: "metrics require start and end timestamps"}
	}

	summary := &types.ActivitySummary{
		SessionID:  session.ID,
		Kind:       session.Kind,
		StartedAt:  *session.StartedAt,
		FinishedAt: *session.FinishedAt,
		ElapsedSec: session.FinishedAt.Sub(*session.StartedAt).Seconds(),
	}
	summary.MovingSec = c.movingTime(strs, session)

	hr := strs[shared.MetricHeartRate]
	power := strs[shared.MetricPower]
	speed := strs[shared.MetricSpeed]
	cadence := strs[shared.MetricCadence]

	if hr != nil && hr.Stats != nil {
		summary.AvgHeartRate = ptr(hr.Stats.Avg)
		summary.MaxHeartRate = ptr(hr.Stats.Max)
	}
	if power != nil && power.Stats != nil {
		summary.AvgPower = ptr(power.Stats.Avg)
		summary.MaxPower = ptr(power.Stats.Max)
	}
	if speed != nil && speed.Stats != nil {
		summary.AvgSpeed = ptr(speed.Stats.Avg)
		summary.MaxSpeed = ptr(speed.Stats.Max)
	}
	if cadence != nil && cadence.Stats != nil {
		summary.AvgCadence = ptr(cadence.Stats.Avg)
	}
	if dist := strs[shared.MetricDistance]; dist != nil && len(dist.Floats) > 0 {
		summary.DistanceM = ptr(dist.Floats[len(dist.Floats)-1] - dist.Floats[0])
	}

	c.computePowerMetrics(logger, summary, power, profile)
	c.computeStress(logger, summary, power, hr, profile)
	c.computeZones(summary, power, hr, profile)
	c.computeCoupled(logger, summary, power, hr)
	c.computeElevation(summary, strs[shared.MetricAltitude], summary.DistanceM)
	c.computeCalories(logger, summary, profile)

	if summary.AvgPower != nil && profile.WeightKg > 0 {
		summary.PowerWeightRatio = ptr(*summary.AvgPower / profile.WeightKg)
	}

	return summary, nil
}

func (c *Computer) computePowerMetrics(logger *slog.Logger, summary *types.ActivitySummary, power *types.AggregatedStream, profile *types.AthleteProfile) {
	if power == nil || len(power.Floats) == 0 {
		logger.Debug("power metrics unavailable: no power stream")
		return
	}
	np := NormalizedPower(power.Floats, c.cfg.NPWindow)
	summary.NormalizedPower = ptr(np)
	if profile.FTPWatts > 0 {
		summary.IntensityFactor = ptr(np / profile.FTPWatts)
	}
	if summary.AvgPower != nil && *summary.AvgPower > 0 {
		summary.VariabilityIndex = ptr(np / *summary.AvgPower)
	}
}

// computeStress fills TrainingStress from power when possible, otherwise
// falls back to the named heart-rate estimator. A session with neither
// stream carries no stress score at all.
func (c *Computer) computeStress(logger *slog.Logger, summary *types.ActivitySummary, power, hr *types.AggregatedStream, profile *types.AthleteProfile) {
	if summary.NormalizedPower != nil && summary.IntensityFactor != nil && profile.FTPWatts > 0 {
		np, intensity := *summary.NormalizedPower, *summary.IntensityFactor
		tss := (summary.ElapsedSec * np * intensity) / (profile.FTPWatts * 3600) * 100
		summary.TrainingStress = ptr(tss)
		summary.StressSource = "power"
	}

	if hr != nil && len(hr.Floats) > 0 && profile.ThresholdHR > 0 {
		est := NewHRTSSEstimator(profile, summary.StartedAt)
		hrtss, trimp, ok := est.Estimate(hr.Floats, hr.Timestamps, c.cfg.GapCap)
		if ok {
			summary.TRIMP = ptr(trimp)
			if summary.TrainingStress == nil {
				summary.TrainingStress = ptr(hrtss)
				summary.StressSource = "hrtss"
			}
		}
	}

	if summary.TrainingStress == nil {
		logger.Debug("training stress unavailable: no power or heart rate stream")
	}
}

func (c *Computer) computeZones(summary *types.ActivitySummary, power, hr *types.AggregatedStream, profile *types.AthleteProfile) {
	if power != nil && profile.FTPWatts > 0 {
		summary.PowerZones = TimeInZones(power.Floats, power.Timestamps, profile.FTPWatts, PowerZoneBands, c.cfg.GapCap)
	}
	if hr != nil && profile.ThresholdHR > 0 {
		summary.HRZones = TimeInZones(hr.Floats, hr.Timestamps, profile.ThresholdHR, HRZoneBands, c.cfg.GapCap)
	}
}

func (c *Computer) computeElevation(summary *types.ActivitySummary, alt *types.AggregatedStream, distanceM *float64) {
	if alt == nil || len(alt.Floats) < 2 {
		return
	}
	gain, loss := ElevationStats(alt.Floats, c.cfg.ElevationNoiseM)
	summary.ElevationGainM = ptr(gain)
	summary.ElevationLossM = ptr(loss)
	if distanceM != nil && *distanceM > 0 {
		net := alt.Floats[len(alt.Floats)-1] - alt.Floats[0]
		summary.AvgGradePct = ptr(net / *distanceM * 100)
		summary.GainPerKm = ptr(gain / (*distanceM / 1000))
	}
}
