package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"github.com/pulsetrack/recorder/pkg/types"
)

func testSummary() *types.ActivitySummary {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	distance := 4800.0
	avgPower := 200.0
	return &types.ActivitySummary{
		SessionID:  "s1",
		Kind:       types.ActivityRide,
		StartedAt:  start,
		FinishedAt: start.Add(10 * time.Minute),
		ElapsedSec: 600,
		MovingSec:  580,
		DistanceM:  &distance,
		AvgPower:   &avgPower,
	}
}

func testStreams(start time.Time, n int) map[string]*types.AggregatedStream {
	ts := make([]time.Time, n)
	hr := make([]float64, n)
	power := make([]float64, n)
	coords := make([]types.Coordinate, n)
	for i := 0; i < n; i++ {
		ts[i] = start.Add(time.Duration(i) * time.Second)
		hr[i] = 150
		power[i] = 200
		coords[i] = types.Coordinate{Lat: 51.5 + float64(i)*0.0001, Lon: -0.15}
	}
	return map[string]*types.AggregatedStream{
		"heart_rate": {Metric: "heart_rate", Type: types.DataTypeFloat, Floats: hr, Timestamps: ts, SampleCount: n},
		"power":      {Metric: "power", Type: types.DataTypeFloat, Floats: power, Timestamps: ts, SampleCount: n},
		"position":   {Metric: "position", Type: types.DataTypeCoord, Coords: coords, Timestamps: ts, SampleCount: n},
	}
}

func TestGenerateFitFileDecodes(t *testing.T) {
	summary := testSummary()
	strs := testStreams(summary.StartedAt, 60)

	data, err := GenerateFitFile(summary, strs)
	if err != nil {
		t.Fatalf("GenerateFitFile failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Empty FIT payload")
	}

	fitDec := decoder.New(bytes.NewReader(data))
	fit, err := fitDec.Decode()
	if err != nil {
		t.Fatalf("Generated file does not decode: %v", err)
	}

	records := 0
	sessions := 0
	sawCycling := false
	for _, msg := range fit.Messages {
		switch msg.Num {
		case typedef.MesgNumRecord:
			records++
		case typedef.MesgNumSession:
			sessions++
			if mesgdef.NewSession(&msg).Sport == typedef.SportCycling {
				sawCycling = true
			}
		}
	}
	if records != 60 {
		t.Errorf("Expected 60 record messages on the densest timeline, got %d", records)
	}
	if sessions != 1 {
		t.Errorf("Expected 1 session message, got %d", sessions)
	}
	if !sawCycling {
		t.Error("Ride kind did not map to the cycling sport")
	}
}

func TestGenerateFitFileRequiresSamples(t *testing.T) {
	if _, err := GenerateFitFile(testSummary(), nil); err == nil {
		t.Error("Expected error with no streams")
	}
	if _, err := GenerateFitFile(nil, nil); err == nil {
		t.Error("Expected error with nil summary")
	}
}

func TestGenerateFitFileUnknownKindFallsBack(t *testing.T) {
	summary := testSummary()
	summary.Kind = types.ActivityKind("rowing")
	strs := testStreams(summary.StartedAt, 10)

	data, err := GenerateFitFile(summary, strs)
	if err != nil {
		t.Fatalf("GenerateFitFile failed: %v", err)
	}

	fitDec := decoder.New(bytes.NewReader(data))
	if _, err := fitDec.Decode(); err != nil {
		t.Fatalf("Generated file does not decode: %v", err)
	}
}
