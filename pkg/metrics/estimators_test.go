package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

func TestNormalizedPowerConstantEqualsPower(t *testing.T) {
	powers := make([]float64, 1200)
	for i := range powers {
		powers[i] = 235
	}
	np := NormalizedPower(powers, 30)
	if math.Abs(np-235) > 1e-9 {
		t.Errorf("NP of constant 235 should be 235, got %v", np)
	}
}

func TestNormalizedPowerWeighsSurges(t *testing.T) {
	// Half at 100 W, half at 300 W: the 4th-power weighting must land
	// above the plain 200 W average.
	powers := make([]float64, 1200)
	for i := range powers {
		if i < 600 {
			powers[i] = 100
		} else {
			powers[i] = 300
		}
	}
	np := NormalizedPower(powers, 30)
	if np <= 200 {
		t.Errorf("NP should exceed the arithmetic mean for a surgy stream, got %v", np)
	}
}

func TestNormalizedPowerWindowClamp(t *testing.T) {
	np := NormalizedPower([]float64{210, 210, 210}, 30)
	if math.Abs(np-210) > 1e-9 {
		t.Errorf("Short stream should clamp the window, got %v", np)
	}
}

func TestHRTSSEstimatorDegenerateInputs(t *testing.T) {
	start := time.Now()
	est := &HRTSSEstimator{MaxHR: 190, RestHR: 60, ThresholdHR: 170, Sex: "male"}

	if _, _, ok := est.Estimate(nil, nil, 10*time.Minute); ok {
		t.Error("Empty stream must be unavailable, not zero")
	}
	if _, _, ok := est.Estimate([]float64{150}, []time.Time{start}, 10*time.Minute); ok {
		t.Error("Single sample must be unavailable")
	}

	bad := &HRTSSEstimator{MaxHR: 60, RestHR: 60, ThresholdHR: 170}
	ts := []time.Time{start, start.Add(time.Second)}
	if _, _, ok := bad.Estimate([]float64{150, 150}, ts, 10*time.Minute); ok {
		t.Error("Degenerate HR range must be unavailable")
	}
}

func TestTRIMPSkipsRecordingGaps(t *testing.T) {
	est := &HRTSSEstimator{MaxHR: 190, RestHR: 60, ThresholdHR: 170, Sex: "male"}
	start := time.Now()
	hr := []float64{150, 150, 150}
	ts := []time.Time{start, start.Add(time.Minute), start.Add(30 * time.Minute)}

	withGap := est.TRIMP(hr, ts, 10*time.Minute)
	noGap := est.TRIMP(hr[:2], ts[:2], 10*time.Minute)
	if math.Abs(withGap-noGap) > 1e-9 {
		t.Errorf("Gap above cap must add nothing: withGap=%v noGap=%v", withGap, noGap)
	}
}

func TestTimeInZonesBucketing(t *testing.T) {
	start := time.Now()
	// 1 Hz: 10 s at 40% FTP, 10 s at 100% FTP, with FTP 250.
	vals := make([]float64, 21)
	ts := make([]time.Time, 21)
	for i := range vals {
		if i <= 10 {
			vals[i] = 100
		} else {
			vals[i] = 250
		}
		ts[i] = start.Add(time.Duration(i) * time.Second)
	}

	zones := TimeInZones(vals, ts, 250, PowerZoneBands, 10*time.Minute)
	if len(zones) != len(PowerZoneBands) {
		t.Fatalf("Expected %d zones, got %d", len(PowerZoneBands), len(zones))
	}
	if math.Abs(zones[0].Seconds-10) > 1e-9 {
		t.Errorf("Z1 should hold 10 s, got %v", zones[0].Seconds)
	}
	// 100% of FTP falls in Z4 (0.90 <= pct < 1.05).
	if math.Abs(zones[3].Seconds-10) > 1e-9 {
		t.Errorf("Z4 should hold 10 s, got %v", zones[3].Seconds)
	}

	var total float64
	for _, z := range zones {
		total += z.Seconds
	}
	if math.Abs(total-20) > 1e-9 {
		t.Errorf("Zone seconds should sum to the covered 20 s, got %v", total)
	}
}

func TestElevationStatsHysteresis(t *testing.T) {
	// Sub-metre wiggles are jitter; only the 1.2 m rise and 1.1 m drop
	// commit.
	gain, loss := ElevationStats([]float64{100, 100.5, 100.3, 101.2, 100.1}, 1.0)
	if math.Abs(gain-1.2) > 1e-9 {
		t.Errorf("Gain should be 1.2, got %v", gain)
	}
	if math.Abs(loss-1.1) > 1e-9 {
		t.Errorf("Loss should be 1.1, got %v", loss)
	}
}

func TestElevationStatsFlat(t *testing.T) {
	gain, loss := ElevationStats([]float64{100, 100.2, 99.9, 100.1}, 1.0)
	if gain != 0 || loss != 0 {
		t.Errorf("Jitter-only stream should commit nothing, got gain=%v loss=%v", gain, loss)
	}
}

func TestKeytelCalories(t *testing.T) {
	profile := testProfile() // male, 70 kg, born 1996-01-15
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// (-55.0969 + 0.6309*140 + 0.1988*70 + 0.2017*30) / 4.184 per minute.
	got := keytelCalories(140, profile, at, 60)
	want := (-55.0969 + 0.6309*140 + 0.1988*70 + 0.2017*30) / 4.184 * 60
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("Keytel calories: want %v got %v", want, got)
	}
}

func TestKeytelCaloriesNeverNegative(t *testing.T) {
	profile := &types.AthleteProfile{
		WeightKg:  45,
		BirthDate: time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC),
		Sex:       "female",
	}
	got := keytelCalories(45, profile, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 30)
	if got < 0 {
		t.Errorf("Calorie estimate clamped at zero, got %v", got)
	}
}

func TestAthleteAge(t *testing.T) {
	profile := testProfile()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if age := profile.Age(at); age != 30 {
		t.Errorf("Expected age 30, got %d", age)
	}
	before := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	if age := profile.Age(before); age != 29 {
		t.Errorf("Expected age 29 before birthday, got %d", age)
	}
}
