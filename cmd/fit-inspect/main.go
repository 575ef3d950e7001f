// fit-inspect prints a field-coverage summary of a generated FIT
// artifact, for eyeballing what the exporter actually wrote.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
)

type fieldStats struct {
	count int
	min   float64
	max   float64
	sum   float64
}

func (fs *fieldStats) update(val proto.Value) {
	v, ok := numeric(val)
	if !ok {
		return
	}
	if fs.count == 0 {
		fs.min, fs.max = v, v
	}
	fs.count++
	fs.sum += v
	if v < fs.min {
		fs.min = v
	}
	if v > fs.max {
		fs.max = v
	}
}

func numeric(val proto.Value) (float64, bool) {
	switch val.Type() {
	case proto.TypeUint8:
		return float64(val.Uint8()), true
	case proto.TypeUint16:
		return float64(val.Uint16()), true
	case proto.TypeUint32:
		return float64(val.Uint32()), true
	case proto.TypeInt8:
		return float64(val.Int8()), true
	case proto.TypeInt16:
		return float64(val.Int16()), true
	case proto.TypeInt32:
		return float64(val.Int32()), true
	case proto.TypeFloat32:
		return float64(val.Float32()), true
	case proto.TypeFloat64:
		return val.Float64(), true
	default:
		return math.NaN(), false
	}
}

// fields the exporter emits on record messages.
var trackedFields = []string{
	"heart_rate",
	"power",
	"cadence",
	"enhanced_speed",
	"distance",
	"enhanced_altitude",
	"position_lat",
	"position_long",
}

func main() {
	inputPath := flag.String("input", "", "Path to FIT file")
	flag.Parse()

	if *inputPath == "" {
		fmt.Println("Please provide input file with -input")
		os.Exit(1)
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		fmt.Printf("Failed to read file: %v\n", err)
		os.Exit(1)
	}

	fitDec := decoder.New(bytes.NewReader(data))
	fitData, err := fitDec.Decode()
	if err != nil {
		fmt.Printf("Failed to decode FIT file: %v\n", err)
		os.Exit(1)
	}

	stats := make(map[string]*fieldStats, len(trackedFields))
	for _, name := range trackedFields {
		stats[name] = &fieldStats{}
	}

	type sessionInfo struct {
		startTime time.Time
		elapsed   float64
		timer     float64
		distance  float64
		sport     string
	}
	var sessions []sessionInfo
	recordCount := 0

	for _, msg := range fitData.Messages {
		switch msg.Num {
		case typedef.MesgNumSession:
			sessionMsg := mesgdef.NewSession(&msg)
			sessions = append(sessions, sessionInfo{
				startTime: sessionMsg.StartTime.UTC(),
				elapsed:   float64(sessionMsg.TotalElapsedTime) / 1000,
				timer:     float64(sessionMsg.TotalTimerTime) / 1000,
				distance:  float64(sessionMsg.TotalDistance) / 100,
				sport:     sessionMsg.Sport.String(),
			})
		case typedef.MesgNumRecord:
			recordCount++
			for _, field := range msg.Fields {
				if s, ok := stats[field.Name]; ok {
					s.update(field.Value)
				}
			}
		}
	}

	fmt.Printf("=== SESSIONS: %d ===\n", len(sessions))
	if len(sessions) > 0 {
		sw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(sw, "#\tStart Time\tElapsed\tMoving\tDistance\tSport")
		for i, s := range sessions {
			fmt.Fprintf(sw, "%d\t%s\t%.0fs\t%.0fs\t%.2f km\t%s\n",
				i+1, s.startTime.Format("2006-01-02 15:04:05"), s.elapsed, s.timer, s.distance/1000, s.sport)
		}
		sw.Flush()
	}

	fmt.Printf("\n=== RECORDS: %d ===\n", recordCount)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Field\tCount\tCoverage\tMin\tMax\tAvg")
	for _, name := range trackedFields {
		s := stats[name]
		if s.count == 0 {
			continue
		}
		coverage := float64(s.count) / float64(recordCount) * 100
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.2f\t%.2f\t%.2f\n",
			name, s.count, coverage, s.min, s.max, s.sum/float64(s.count))
	}
	w.Flush()
}
