package streams

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

func floatChunk(metric string, index int, start time.Time, vals []float64) *types.StreamChunk {
	ts := make([]time.Time, len(vals))
	for i := range vals {
		ts[i] = start.Add(time.Duration(i) * time.Second)
	}
	return &types.StreamChunk{
		SessionID:   "s1",
		Metric:      metric,
		Type:        types.DataTypeFloat,
		Index:       index,
		Values:      EncodeFloats(vals),
		Timestamps:  EncodeTimes(ts),
		SampleCount: len(vals),
	}
}

func TestAggregateConcatenatesInIndexOrder(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	// Deliver the chunks out of order.
	chunks := []*types.StreamChunk{
		floatChunk("power", 1, start.Add(3*time.Second), []float64{220, 230}),
		floatChunk("power", 0, start, []float64{200, 210, 205}),
	}

	out, err := Aggregate(chunks)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	stream := out["power"]
	if stream == nil {
		t.Fatal("power stream missing")
	}
	if stream.SampleCount != 5 || len(stream.Floats) != 5 {
		t.Fatalf("Expected 5 samples, got count=%d len=%d", stream.SampleCount, len(stream.Floats))
	}

	want := []float64{200, 210, 205, 220, 230}
	for i, v := range want {
		if stream.Floats[i] != v {
			t.Errorf("Sample %d: want %v got %v", i, v, stream.Floats[i])
		}
	}
	if stream.Stats == nil {
		t.Fatal("Float stream missing stats")
	}
	if stream.Stats.Min != 200 || stream.Stats.Max != 230 {
		t.Errorf("Stats min/max wrong: %+v", stream.Stats)
	}
	if math.Abs(stream.Stats.Avg-213) > 1e-9 {
		t.Errorf("Stats avg wrong: %v", stream.Stats.Avg)
	}
}

func TestAggregateRejectsIndexGap(t *testing.T) {
	start := time.Now().UTC()
	chunks := []*types.StreamChunk{
		floatChunk("power", 0, start, []float64{200}),
		floatChunk("power", 2, start.Add(5*time.Second), []float64{210}),
	}
	_, err := Aggregate(chunks)
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError on index gap, got %v", err)
	}
}

func TestAggregateRejectsMixedTypes(t *testing.T) {
	start := time.Now().UTC()
	boolChunk := &types.StreamChunk{
		SessionID:   "s1",
		Metric:      "power",
		Type:        types.DataTypeBool,
		Index:       1,
		Values:      EncodeBools([]bool{true}),
		Timestamps:  EncodeTimes([]time.Time{start.Add(time.Second)}),
		SampleCount: 1,
	}
	_, err := Aggregate([]*types.StreamChunk{
		floatChunk("power", 0, start, []float64{200}),
		boolChunk,
	})
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError on mixed types, got %v", err)
	}
}

func TestAggregateCoordStreamCarriesNoStats(t *testing.T) {
	start := time.Now().UTC()
	coords := []types.Coordinate{{Lat: 51.5, Lon: -0.15}, {Lat: 51.6, Lon: -0.16}}
	chunk := &types.StreamChunk{
		SessionID:   "s1",
		Metric:      "position",
		Type:        types.DataTypeCoord,
		Index:       0,
		Values:      EncodeCoords(coords),
		Timestamps:  EncodeTimes([]time.Time{start, start.Add(time.Second)}),
		SampleCount: 2,
	}

	out, err := Aggregate([]*types.StreamChunk{chunk})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	stream := out["position"]
	if stream.Stats != nil {
		t.Error("Coord stream must not carry numeric stats")
	}
	if len(stream.Coords) != 2 || stream.Coords[0] != coords[0] {
		t.Errorf("Coords not preserved: %+v", stream.Coords)
	}
}

func TestAggregateEmptyInputYieldsEmptyMap(t *testing.T) {
	out, err := Aggregate(nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected empty result, got %d streams", len(out))
	}
}

func TestAggregateRejectsCountMismatch(t *testing.T) {
	start := time.Now().UTC()
	chunk := floatChunk("power", 0, start, []float64{200, 210})
	chunk.SampleCount = 3
	_, err := Aggregate([]*types.StreamChunk{chunk})
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError on count mismatch, got %v", err)
	}
}
