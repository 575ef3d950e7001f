package metrics

import "math"

// NormalizedPower is the 4th-power-weighted average of the power stream:
// rolling window averages, each raised to the 4th power, averaged, then
// 4th-rooted. Records are assumed to arrive at roughly one per second, so
// the window is expressed in samples. A constant stream at P yields
// exactly P.
func NormalizedPower(powers []float64, window int) float64 {
	if len(powers) == 0 {
		return 0
	}
	if window < 1 || window > len(powers) {
		window = len(powers)
	}

	var windowSum float64
	for i := 0; i < window; i++ {
		windowSum += powers[i]
	}

	var fourthSum float64
	count := 1
	avg := windowSum / float64(window)
	fourthSum += avg * avg * avg * avg

	for i := window; i < len(powers); i++ {
		windowSum += powers[i] - powers[i-window]
		avg = windowSum / float64(window)
		fourthSum += avg * avg * avg * avg
		count++
	}

	return math.Pow(fourthSum/float64(count), 0.25)
}
