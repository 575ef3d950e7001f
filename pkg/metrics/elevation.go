package metrics

// ElevationStats walks the altitude stream with a hysteresis floor:
// changes smaller than noiseM relative to the last committed altitude are
// sensor jitter and accumulate nothing. Only once the drift exceeds the
// floor does it commit as real gain or loss.
func ElevationStats(alts []float64, noiseM float64) (gain, loss float64) {
	if len(alts) == 0 {
		return 0, 0
	}
	ref := alts[0]
	for _, alt := range alts[1:] {
		diff := alt - ref
		switch {
		case diff >= noiseM:
			gain += diff
			ref = alt
		case diff <= -noiseM:
			loss += -diff
			ref = alt
		}
	}
	return gain, loss
}
