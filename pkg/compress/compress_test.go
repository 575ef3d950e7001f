package compress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsetrack/recorder/pkg/types"
)

func testTimes(start time.Time, n int) []time.Time {
	ts := make([]time.Time, n)
	for i := range ts {
		ts[i] = start.Add(time.Duration(i) * time.Second)
	}
	return ts
}

func TestFloatStreamRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	in := &types.AggregatedStream{
		Metric:      "power",
		Type:        types.DataTypeFloat,
		Floats:      []float64{200.25, 210.5, 198.75, 305.125},
		Timestamps:  testTimes(start, 4),
		SampleCount: 4,
		Stats:       &types.SummaryStats{Min: 198.75, Max: 305.125, Avg: 228.65625},
	}

	cs, err := codec.Compress(in)
	require.NoError(t, err)
	require.Equal(t, 4, cs.SampleCount)
	require.NotNil(t, cs.Stats)
	// Stats travel uncompressed and exactly.
	require.Equal(t, in.Stats.Avg, cs.Stats.Avg)
	// 4 bytes per float32 plus the varint timestamp column.
	require.Greater(t, cs.OriginalBytes, 16)

	out, err := codec.Decompress(cs)
	require.NoError(t, err)
	require.Equal(t, in.SampleCount, out.SampleCount)
	require.Len(t, out.Floats, 4)

	// Values narrow to float32; exact for these dyadic fractions, but the
	// contract is single-precision tolerance.
	for i := range in.Floats {
		require.InDelta(t, in.Floats[i], out.Floats[i], math.Abs(in.Floats[i])*1e-6)
	}
	// Timestamps are exact to the millisecond.
	for i := range in.Timestamps {
		require.True(t, in.Timestamps[i].Equal(out.Timestamps[i]),
			"timestamp %d: %v != %v", i, in.Timestamps[i], out.Timestamps[i])
	}
}

func TestBoolStreamRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	start := time.Now().UTC().Truncate(time.Millisecond)
	in := &types.AggregatedStream{
		Metric:      "paused",
		Type:        types.DataTypeBool,
		Bools:       []bool{true, false, true},
		Timestamps:  testTimes(start, 3),
		SampleCount: 3,
	}

	cs, err := codec.Compress(in)
	require.NoError(t, err)
	require.Nil(t, cs.Stats)

	out, err := codec.Decompress(cs)
	require.NoError(t, err)
	require.Equal(t, in.Bools, out.Bools)
}

func TestCoordStreamKeepsPairing(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	start := time.Now().UTC().Truncate(time.Millisecond)
	in := &types.AggregatedStream{
		Metric:      "position",
		Type:        types.DataTypeCoord,
		Coords:      []types.Coordinate{{Lat: 51.5028, Lon: -0.1513}, {Lat: 51.5035, Lon: -0.1545}},
		Timestamps:  testTimes(start, 2),
		SampleCount: 2,
	}

	cs, err := codec.Compress(in)
	require.NoError(t, err)

	out, err := codec.Decompress(cs)
	require.NoError(t, err)
	require.Len(t, out.Coords, 2)
	for i := range in.Coords {
		require.InDelta(t, in.Coords[i].Lat, out.Coords[i].Lat, 1e-4)
		require.InDelta(t, in.Coords[i].Lon, out.Coords[i].Lon, 1e-4)
	}
}

func TestCompressRejectsUnknownType(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	_, err = codec.Compress(&types.AggregatedStream{Metric: "x", Type: types.DataType("vector")})
	var vErr *types.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestDecompressRejectsCorruptPayload(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	_, err = codec.Decompress(&types.CompressedStream{
		Metric:      "power",
		Type:        types.DataTypeFloat,
		Values:      "not base64!!",
		Timestamps:  "also not",
		SampleCount: 3,
	})
	var vErr *types.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestCompressShrinksRepetitiveStream(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	n := 3600
	floats := make([]float64, n)
	for i := range floats {
		floats[i] = 200
	}
	in := &types.AggregatedStream{
		Metric:      "power",
		Type:        types.DataTypeFloat,
		Floats:      floats,
		Timestamps:  testTimes(time.Now().UTC(), n),
		SampleCount: n,
	}

	cs, err := codec.Compress(in)
	require.NoError(t, err)
	// base64 of the compressed column must still be far below the raw size.
	require.Less(t, len(cs.Values), in.SampleCount)
}
