// Package compress serializes aggregated streams into a compact binary
// form, compresses them with zstd and encodes the result for safe
// transport. Summary stats are carried through uncompressed so consumers
// can read them without decompressing.
//
// Scalar values are narrowed to single precision as a deliberate
// bandwidth trade-off: full float64 round-trip is not guaranteed.
// Coordinate streams stay structured lists of pairs; flattening them into
// the scalar encoding would destroy the pairing.
package compress

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/pulsetrack/recorder/pkg/types"
)

type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Compress packs one aggregated stream for transport.
func (c *Codec) Compress(s *types.AggregatedStream) (*types.CompressedStream, error) {
	var raw []byte
	switch s.Type {
	case types.DataTypeFloat:
		raw = packFloat32(s.Floats)
	case types.DataTypeBool:
		raw = packBools(s.Bools)
	case types.DataTypeCoord:
		raw = packCoords(s.Coords)
	default:
		return nil, &types.ValidationError{Field: s.Metric, Reason: "unknown data type " + string(s.Type)}
	}
	tsRaw := packTimestamps(s.Timestamps)

	return &types.CompressedStream{
		Metric:        s.Metric,
		Type:          s.Type,
		Values:        base64.StdEncoding.EncodeToString(c.enc.EncodeAll(raw, nil)),
		Timestamps:    base64.StdEncoding.EncodeToString(c.enc.EncodeAll(tsRaw, nil)),
		SampleCount:   s.SampleCount,
		OriginalBytes: len(raw) + len(tsRaw),
		Stats:         s.Stats,
	}, nil
}

// Decompress reverses Compress. Sample count and stats round-trip
// exactly; float values round-trip within single-precision tolerance.
func (c *Codec) Decompress(cs *types.CompressedStream) (*types.AggregatedStream, error) {
	raw, err := c.decodeField(cs.Values)
	if err != nil {
		return nil, &types.ValidationError{Field: cs.Metric, Reason: "corrupt value payload"}
	}
	tsRaw, err := c.decodeField(cs.Timestamps)
	if err != nil {
		return nil, &types.ValidationError{Field: cs.Metric, Reason: "corrupt timestamp payload"}
	}

	ts, err := unpackTimestamps(tsRaw, cs.SampleCount)
	if err != nil {
		return nil, err
	}
	out := &types.AggregatedStream{
		Metric:      cs.Metric,
		Type:        cs.Type,
		Timestamps:  ts,
		SampleCount: cs.SampleCount,
		Stats:       cs.Stats,
	}
	switch cs.Type {
	case types.DataTypeFloat:
		out.Floats, err = unpackFloat32(raw, cs.SampleCount)
	case types.DataTypeBool:
		out.Bools, err = unpackBools(raw, cs.SampleCount)
	case types.DataTypeCoord:
		out.Coords, err = unpackCoords(raw, cs.SampleCount)
	default:
		err = &types.ValidationError{Field: cs.Metric, Reason: "unknown data type " + string(cs.Type)}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Codec) decodeField(field string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		return nil, err
	}
	return c.dec.DecodeAll(compressed, nil)
}

func packFloat32(vals []float64) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return buf
}

func unpackFloat32(buf []byte, n int) ([]float64, error) {
	if len(buf) != 4*n {
		return nil, &types.ValidationError{Field: "values", Reason: "float payload size mismatch"}
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
	}
	return vals, nil
}

func packBools(vals []bool) []byte {
	buf := make([]byte, len(vals))
	for i, v := range vals {
		if v {
			buf[i] = 1
		}
	}
	return buf
}

func unpackBools(buf []byte, n int) ([]bool, error) {
	if len(buf) != n {
		return nil, &types.ValidationError{Field: "values", Reason: "bool payload size mismatch"}
	}
	vals := make([]bool, n)
	for i, b := range buf {
		vals[i] = b != 0
	}
	return vals, nil
}

func packCoords(vals []types.Coordinate) []byte {
	buf := make([]byte, 8*len(vals))
	for i, c := range vals {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(float32(c.Lat)))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(float32(c.Lon)))
	}
	return buf
}

func unpackCoords(buf []byte, n int) ([]types.Coordinate, error) {
	if len(buf) != 8*n {
		return nil, &types.ValidationError{Field: "values", Reason: "coord payload size mismatch"}
	}
	vals := make([]types.Coordinate, n)
	for i := range vals {
		vals[i] = types.Coordinate{
			Lat: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8:]))),
			Lon: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8+4:]))),
		}
	}
	return vals, nil
}

// Timestamps are delta-encoded signed varints of Unix milliseconds: the
// first value absolute, every later value relative to its predecessor.
func packTimestamps(ts []time.Time) []byte {
	buf := make([]byte, 0, 2*len(ts))
	var prev int64
	tmp := make([]byte, binary.MaxVarintLen64)
	for i, t := range ts {
		ms := t.UnixMilli()
		var delta int64
		if i == 0 {
			delta = ms
		} else {
			delta = ms - prev
		}
		n := binary.PutVarint(tmp, delta)
		buf = append(buf, tmp[:n]...)
		prev = ms
	}
	return buf
}

func unpackTimestamps(buf []byte, n int) ([]time.Time, error) {
	ts := make([]time.Time, 0, n)
	var prev int64
	for len(ts) < n {
		delta, read := binary.Varint(buf)
		if read <= 0 {
			return nil, &types.ValidationError{Field: "timestamps", Reason: "truncated timestamp payload"}
		}
		buf = buf[read:]
		prev += delta
		ts = append(ts, time.UnixMilli(prev).UTC())
	}
	return ts, nil
}
