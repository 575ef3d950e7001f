package metrics

import (
	"math"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

// ZoneBand is one fractional intensity band relative to a threshold value
// (FTP for power, threshold HR for heart rate).
type ZoneBand struct {
	Label  string
	MinPct float64
	MaxPct float64
}

// PowerZoneBands is the Coggan six-zone model as fractions of FTP.
var PowerZoneBands = []ZoneBand{
	{Label: "Z1 (Active Recovery)", MinPct: 0.00, MaxPct: 0.55},
	{Label: "Z2 (Endurance)", MinPct: 0.55, MaxPct: 0.75},
	{Label: "Z3 (Tempo)", MinPct: 0.75, MaxPct: 0.90},
	{Label: "Z4 (Threshold)", MinPct: 0.90, MaxPct: 1.05},
	{Label: "Z5 (VO2 Max)", MinPct: 1.05, MaxPct: 1.20},
	{Label: "Z6 (Anaerobic)", MinPct: 1.20, MaxPct: math.Inf(1)},
}

// HRZoneBands are fractions of threshold heart rate.
var HRZoneBands = []ZoneBand{
	{Label: "Z1 (Recovery)", MinPct: 0.00, MaxPct: 0.68},
	{Label: "Z2 (Endurance)", MinPct: 0.68, MaxPct: 0.83},
	{Label: "Z3 (Tempo)", MinPct: 0.83, MaxPct: 0.94},
	{Label: "Z4 (Threshold)", MinPct: 0.94, MaxPct: 1.05},
	{Label: "Z5 (Above Threshold)", MinPct: 1.05, MaxPct: math.Inf(1)},
}

// TimeInZones buckets each sample's duration into the band its fraction
// of threshold falls in. Deltas above gapCap are recording gaps and add
// nothing.
func TimeInZones(vals []float64, ts []time.Time, threshold float64, bands []ZoneBand, gapCap time.Duration) []types.ZoneDuration {
	out := make([]types.ZoneDuration, len(bands))
	for i, band := range bands {
		out[i].Label = band.Label
	}
	if threshold <= 0 {
		return out
	}

	for i := 1; i < len(vals); i++ {
		delta := ts[i].Sub(ts[i-1])
		if delta <= 0 || delta > gapCap {
			continue
		}
		pct := vals[i] / threshold
		for j, band := range bands {
			if pct >= band.MinPct && pct < band.MaxPct {
				out[j].Seconds += delta.Seconds()
				break
			}
		}
	}
	return out
}
