package streams

import (
	"sort"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

// Aggregate rebuilds one contiguous series per metric from the session's
// persisted chunks. Chunks are grouped by metric and ordered by index;
// destination slices are pre-sized to the exact total sample count and
// each chunk's payload is copied to its offset in a single pass, with
// min/max/avg computed concurrently for float metrics.
//
// A metric with no chunks simply does not appear in the result: absence
// means "unavailable", never a zero-filled series.
func Aggregate(chunks []*types.StreamChunk) (map[string]*types.AggregatedStream, error) {
	byMetric := make(map[string][]*types.StreamChunk)
	for _, c := range chunks {
		byMetric[c.Metric] = append(byMetric[c.Metric], c)
	}

	out := make(map[string]*types.AggregatedStream, len(byMetric))
	for metric, mc := range byMetric {
		stream, err := aggregateMetric(metric, mc)
		if err != nil {
			return nil, err
		}
		if stream.SampleCount > 0 {
			out[metric] = stream
		}
	}
	return out, nil
}

func aggregateMetric(metric string, chunks []*types.StreamChunk) (*types.AggregatedStream, error) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	dtype := chunks[0].Type
	total := 0
	for i, c := range chunks {
		if c.Type != dtype {
			return nil, &types.ValidationError{Field: metric, Reason: "mixed data types across chunks"}
		}
		if c.Index != chunks[0].Index+i {
			return nil, &types.ValidationError{Field: metric, Reason: "chunk index sequence has a gap or duplicate"}
		}
		total += c.SampleCount
	}

	stream := &types.AggregatedStream{
		Metric:      metric,
		Type:        dtype,
		Timestamps:  make([]time.Time, 0, total),
		SampleCount: total,
	}
	switch dtype {
	case types.DataTypeFloat:
		stream.Floats = make([]float64, 0, total)
	case types.DataTypeBool:
		stream.Bools = make([]bool, 0, total)
	case types.DataTypeCoord:
		stream.Coords = make([]types.Coordinate, 0, total)
	default:
		return nil, &types.ValidationError{Field: metric, Reason: "unknown data type " + string(dtype)}
	}

	var stats *types.SummaryStats
	var sum float64

	for _, c := range chunks {
		ts, err := DecodeTimes(c.Timestamps)
		if err != nil {
			return nil, err
		}
		if len(ts) != c.SampleCount {
			return nil, &types.ValidationError{Field: metric, Reason: "timestamp count does not match sample count"}
		}
		stream.Timestamps = append(stream.Timestamps, ts...)

		switch dtype {
		case types.DataTypeFloat:
			vals, err := DecodeFloats(c.Values)
			if err != nil {
				return nil, err
			}
			if len(vals) != c.SampleCount {
				return nil, &types.ValidationError{Field: metric, Reason: "value count does not match sample count"}
			}
			for _, v := range vals {
				if stats == nil {
					stats = &types.SummaryStats{Min: v, Max: v}
				} else {
					if v < stats.Min {
						stats.Min = v
					}
					if v > stats.Max {
						stats.Max = v
					}
				}
				sum += v
			}
			stream.Floats = append(stream.Floats, vals...)
		case types.DataTypeBool:
			vals, err := DecodeBools(c.Values)
			if err != nil {
				return nil, err
			}
			if len(vals) != c.SampleCount {
				return nil, &types.ValidationError{Field: metric, Reason: "value count does not match sample count"}
			}
			stream.Bools = append(stream.Bools, vals...)
		case types.DataTypeCoord:
			vals, err := DecodeCoords(c.Values)
			if err != nil {
				return nil, err
			}
			if len(vals) != c.SampleCount {
				return nil, &types.ValidationError{Field: metric, Reason: "value count does not match sample count"}
			}
			stream.Coords = append(stream.Coords, vals...)
		}
	}

	if stats != nil && total > 0 {
		stats.Avg = sum / float64(total)
		stream.Stats = stats
	}
	return stream, nil
}
