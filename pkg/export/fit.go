// Package export generates a FIT activity artifact from the aggregated
// streams so the finished session can also be consumed by standard
// fitness tooling.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	shared "github.com/pulsetrack/recorder/pkg"
	"github.com/pulsetrack/recorder/pkg/types"
)

// Degrees to semicircles per the FIT standard.
const degreesToSemicircles = 2147483648.0 / 180.0

var kindSports = map[types.ActivityKind]typedef.Sport{
	types.ActivityRide: typedef.SportCycling,
	types.ActivityRun:  typedef.SportRunning,
	types.ActivitySwim: typedef.SportSwimming,
	types.ActivityHike: typedef.SportHiking,
}

// GenerateFitFile encodes the summary and streams into a FIT activity
// file. Records are merged across streams on the timeline of the densest
// float stream, with each secondary stream advanced by a cursor.
func GenerateFitFile(summary *types.ActivitySummary, strs map[string]*types.AggregatedStream) ([]byte, error) {
	if summary == nil {
		return nil, fmt.Errorf("summary cannot be nil")
	}

	timeline := primaryTimeline(strs)
	if len(timeline) == 0 {
		return nil, fmt.Errorf("no stream samples to encode")
	}

	fit := &proto.FIT{}

	fileId := mesgdef.NewFileId(nil).
		SetType(typedef.FileActivity).
		SetManufacturer(typedef.ManufacturerDevelopment).
		SetProduct(1).
		SetTimeCreated(summary.StartedAt)
	fit.Messages = append(fit.Messages, fileId.ToMesg(nil))

	hr := newCursor(strs[shared.MetricHeartRate])
	power := newCursor(strs[shared.MetricPower])
	cadence := newCursor(strs[shared.MetricCadence])
	speed := newCursor(strs[shared.MetricSpeed])
	distance := newCursor(strs[shared.MetricDistance])
	altitude := newCursor(strs[shared.MetricAltitude])
	position := newCursor(strs[shared.MetricPosition])

	for _, ts := range timeline {
		rec := mesgdef.NewRecord(nil).SetTimestamp(ts)
		if v, ok := hr.floatAt(ts); ok {
			rec.SetHeartRate(uint8(v))
		}
		if v, ok := power.floatAt(ts); ok {
			rec.SetPower(uint16(v))
		}
		if v, ok := cadence.floatAt(ts); ok {
			rec.SetCadence(uint8(v))
		}
		if v, ok := speed.floatAt(ts); ok {
			rec.SetEnhancedSpeed(uint32(v * 1000)) // m/s -> mm/s
		}
		if v, ok := distance.floatAt(ts); ok {
			rec.SetDistance(uint32(v * 100)) // m -> cm
		}
		if v, ok := altitude.floatAt(ts); ok {
			rec.SetEnhancedAltitude(uint32((v + 500.0) * 5.0)) // scale 5, offset 500
		}
		if c, ok := position.coordAt(ts); ok {
			rec.SetPositionLat(int32(c.Lat * degreesToSemicircles))
			rec.SetPositionLong(int32(c.Lon * degreesToSemicircles))
		}
		fit.Messages = append(fit.Messages, rec.ToMesg(nil))
	}

	sport, ok := kindSports[summary.Kind]
	if !ok {
		sport = typedef.SportGeneric
	}

	sessionMsg := mesgdef.NewSession(nil).
		SetTimestamp(summary.FinishedAt).
		SetStartTime(summary.StartedAt).
		SetSport(sport).
		SetTotalElapsedTime(uint32(summary.ElapsedSec * 1000)).
		SetTotalTimerTime(uint32(summary.MovingSec * 1000))
	if summary.DistanceM != nil {
		sessionMsg.SetTotalDistance(uint32(*summary.DistanceM * 100))
	}
	if summary.AvgPower != nil {
		sessionMsg.SetAvgPower(uint16(*summary.AvgPower))
	}
	if summary.AvgHeartRate != nil {
		sessionMsg.SetAvgHeartRate(uint8(*summary.AvgHeartRate))
	}
	fit.Messages = append(fit.Messages, sessionMsg.ToMesg(nil))

	activityMsg := mesgdef.NewActivity(nil).
		SetTimestamp(summary.FinishedAt).
		SetType(typedef.ActivityManual).
		SetNumSessions(1)
	fit.Messages = append(fit.Messages, activityMsg.ToMesg(nil))

	var buf bytes.Buffer
	if err := encoder.New(&buf).Encode(fit); err != nil {
		return nil, fmt.Errorf("failed to encode FIT file: %w", err)
	}
	return buf.Bytes(), nil
}

// primaryTimeline picks the densest stream's timestamps as the record
// timeline.
func primaryTimeline(strs map[string]*types.AggregatedStream) []time.Time {
	var best *types.AggregatedStream
	for _, s := range strs {
		if best == nil || s.SampleCount > best.SampleCount {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	return best.Timestamps
}

// cursor advances monotonically through one stream as the timeline moves
// forward, yielding the latest sample at or before each instant.
type cursor struct {
	stream *types.AggregatedStream
	pos    int
}

func newCursor(s *types.AggregatedStream) *cursor {
	return &cursor{stream: s}
}

func (c *cursor) advance(ts time.Time) (int, bool) {
	if c.stream == nil || len(c.stream.Timestamps) == 0 {
		return 0, false
	}
	for c.pos < len(c.stream.Timestamps)-1 && !c.stream.Timestamps[c.pos+1].After(ts) {
		c.pos++
	}
	if c.stream.Timestamps[c.pos].After(ts) {
		return 0, false
	}
	return c.pos, true
}

func (c *cursor) floatAt(ts time.Time) (float64, bool) {
	i, ok := c.advance(ts)
	if !ok || c.stream.Type != types.DataTypeFloat {
		return 0, false
	}
	return c.stream.Floats[i], true
}

func (c *cursor) coordAt(ts time.Time) (types.Coordinate, bool) {
	i, ok := c.advance(ts)
	if !ok || c.stream.Type != types.DataTypeCoord {
		return types.Coordinate{}, false
	}
	return c.stream.Coords[i], true
}
