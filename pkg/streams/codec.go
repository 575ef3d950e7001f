// Package streams reconstructs full-resolution per-metric series from
// durable chunks and owns the binary column codec those chunks use.
package streams

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

// Chunk columns are fixed-width little-endian: float64 for scalars, one
// byte per bool, lat/lon float64 pairs for coordinates, int64 Unix
// milliseconds for timestamps. Fixed width keeps decode offsets exact so
// the aggregator can copy straight into pre-sized destination slices.

func EncodeFloats(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func DecodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, &types.ValidationError{Field: "values", Reason: "float column length not a multiple of 8"}
	}
	vals := make([]float64, len(buf)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vals, nil
}

func EncodeBools(vals []bool) []byte {
	buf := make([]byte, len(vals))
	for i, v := range vals {
		if v {
			buf[i] = 1
		}
	}
	return buf
}

func DecodeBools(buf []byte) ([]bool, error) {
	vals := make([]bool, len(buf))
	for i, b := range buf {
		vals[i] = b != 0
	}
	return vals, nil
}

func EncodeCoords(vals []types.Coordinate) []byte {
	buf := make([]byte, 16*len(vals))
	for i, c := range vals {
		binary.LittleEndian.PutUint64(buf[i*16:], math.Float64bits(c.Lat))
		binary.LittleEndian.PutUint64(buf[i*16+8:], math.Float64bits(c.Lon))
	}
	return buf
}

func DecodeCoords(buf []byte) ([]types.Coordinate, error) {
	if len(buf)%16 != 0 {
		return nil, &types.ValidationError{Field: "values", Reason: "coord column length not a multiple of 16"}
	}
	vals := make([]types.Coordinate, len(buf)/16)
	for i := range vals {
		vals[i] = types.Coordinate{
			Lat: math.Float64frombits(binary.LittleEndian.Uint64(buf[i*16:])),
			Lon: math.Float64frombits(binary.LittleEndian.Uint64(buf[i*16+8:])),
		}
	}
	return vals, nil
}

func EncodeTimes(ts []time.Time) []byte {
	buf := make([]byte, 8*len(ts))
	for i, t := range ts {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(t.UnixMilli()))
	}
	return buf
}

func DecodeTimes(buf []byte) ([]time.Time, error) {
	if len(buf)%8 != 0 {
		return nil, &types.ValidationError{Field: "timestamps", Reason: "timestamp column length not a multiple of 8"}
	}
	ts := make([]time.Time, len(buf)/8)
	for i := range ts {
		ms := int64(binary.LittleEndian.Uint64(buf[i*8:]))
		ts[i] = time.UnixMilli(ms).UTC()
	}
	return ts, nil
}
