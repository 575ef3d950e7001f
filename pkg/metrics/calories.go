package metrics

import (
	"log/slog"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

// MET values by activity kind, used only when neither power nor heart
// rate is available.
var kindMETs = map[types.ActivityKind]float64{
	types.ActivityRide: 7.5,
	types.ActivityRun:  9.8,
	types.ActivitySwim: 8.0,
	types.ActivityHike: 6.0,
}

const defaultMET = 5.0

// computeCalories picks the calorie model by available inputs, most
// specific first, and records which model produced the estimate:
//
//	"power-work" - mechanical work from average power; gross metabolic
//	               efficiency (~24%) and the kJ/kcal factor cancel, so
//	               kJ of work ~ kcal burned
//	"keytel-hr"  - Keytel et al. regression on average HR, weight, age
//	"met"        - MET x weight x hours by activity kind
func (c *Computer) computeCalories(logger *slog.Logger, summary *types.ActivitySummary, profile *types.AthleteProfile) {
	switch {
	case summary.AvgPower != nil && summary.MovingSec > 0:
		kj := *summary.AvgPower * summary.MovingSec / 1000
		summary.Calories = ptr(kj)
		summary.CalorieModel = "power-work"
	case summary.AvgHeartRate != nil && profile.WeightKg > 0:
		summary.Calories = ptr(keytelCalories(*summary.AvgHeartRate, profile, summary.StartedAt, summary.ElapsedSec/60))
		summary.CalorieModel = "keytel-hr"
	case profile.WeightKg > 0 && summary.ElapsedSec > 0:
		met, ok := kindMETs[summary.Kind]
		if !ok {
			met = defaultMET
		}
		summary.Calories = ptr(met * profile.WeightKg * summary.ElapsedSec / 3600)
		summary.CalorieModel = "met"
	default:
		logger.Debug("calories unavailable: no power, heart rate or weight")
	}
}

// keytelCalories is the Keytel et al. (2005) kcal/min regression.
func keytelCalories(avgHR float64, profile *types.AthleteProfile, at time.Time, minutes float64) float64 {
	age := float64(profile.Age(at))
	var perMin float64
	if profile.Sex == "female" {
		perMin = (-20.4022 + 0.4472*avgHR - 0.1263*profile.WeightKg + 0.074*age) / 4.184
	} else {
		perMin = (-55.0969 + 0.6309*avgHR + 0.1988*profile.WeightKg + 0.2017*age) / 4.184
	}
	if perMin < 0 {
		perMin = 0
	}
	return perMin * minutes
}
