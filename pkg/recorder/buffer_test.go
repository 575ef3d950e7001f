package recorder

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/pulsetrack/recorder/pkg/streams"
	"github.com/pulsetrack/recorder/pkg/testing/mocks"
	"github.com/pulsetrack/recorder/pkg/types"
)

func appendFloats(t *testing.T, buf *Buffer, metric string, start time.Time, n int, value float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := buf.Append(types.SensorReading{
			Metric:    metric,
			Value:     types.Float(value),
			Timestamp: start.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
}

func TestBufferSealsAtCapacity(t *testing.T) {
	store := mocks.NewMemStore()
	buf := NewBuffer("s1", store, slog.Default())
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	appendFloats(t, buf, "power", start, ChunkCapacity+10, 200)

	if err := buf.FlushSealed(context.Background()); err != nil {
		t.Fatalf("FlushSealed failed: %v", err)
	}
	chunks, _ := store.ListChunks(context.Background(), "s1")
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 sealed chunk, got %d", len(chunks))
	}
	if chunks[0].SampleCount != ChunkCapacity || chunks[0].Index != 0 {
		t.Errorf("Chunk shape wrong: count=%d index=%d", chunks[0].SampleCount, chunks[0].Index)
	}

	// FlushAll picks up the open remainder with the next contiguous index.
	if err := buf.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}
	chunks, _ = store.ListChunks(context.Background(), "s1")
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks after FlushAll, got %d", len(chunks))
	}
	if chunks[1].Index != 1 || chunks[1].SampleCount != 10 {
		t.Errorf("Remainder chunk wrong: count=%d index=%d", chunks[1].SampleCount, chunks[1].Index)
	}
}

func TestBufferRejectsStaleReadings(t *testing.T) {
	store := mocks.NewMemStore()
	buf := NewBuffer("s1", store, slog.Default())
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	appendFloats(t, buf, "heart_rate", start, ChunkCapacity, 150)
	if err := buf.FlushSealed(context.Background()); err != nil {
		t.Fatalf("FlushSealed failed: %v", err)
	}
	lastFlushed := start.Add(time.Duration(ChunkCapacity-1) * time.Second)

	// Beyond the jitter tolerance: rejected, nothing re-flushed.
	err := buf.Append(types.SensorReading{
		Metric:    "heart_rate",
		Value:     types.Float(150),
		Timestamp: lastFlushed.Add(-JitterTolerance - time.Second),
	})
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError for stale reading, got %v", err)
	}

	// Within the tolerance: accepted.
	if err := buf.Append(types.SensorReading{
		Metric:    "heart_rate",
		Value:     types.Float(150),
		Timestamp: lastFlushed.Add(-JitterTolerance + time.Second),
	}); err != nil {
		t.Fatalf("In-tolerance reading rejected: %v", err)
	}

	chunks, _ := store.ListChunks(context.Background(), "s1")
	if len(chunks) != 1 {
		t.Errorf("Flushed chunk count changed after stale reject: %d", len(chunks))
	}
}

func TestBufferOrdersJitteredReadings(t *testing.T) {
	store := mocks.NewMemStore()
	buf := NewBuffer("s1", store, slog.Default())
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// Arrive 0s, 3s, 1s: the 1s sample must slot between the others.
	for _, offset := range []int{0, 3, 1} {
		err := buf.Append(types.SensorReading{
			Metric:    "cadence",
			Value:     types.Float(float64(offset)),
			Timestamp: start.Add(time.Duration(offset) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := buf.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}

	chunks, _ := store.ListChunks(context.Background(), "s1")
	ts, err := streams.DecodeTimes(chunks[0].Timestamps)
	if err != nil {
		t.Fatalf("DecodeTimes failed: %v", err)
	}
	vals, _ := streams.DecodeFloats(chunks[0].Values)
	for i := 1; i < len(ts); i++ {
		if ts[i].Before(ts[i-1]) {
			t.Errorf("Timestamps out of order at %d: %v < %v", i, ts[i], ts[i-1])
		}
	}
	if vals[0] != 0 || vals[1] != 1 || vals[2] != 3 {
		t.Errorf("Values not reordered with timestamps: %v", vals)
	}
}

func TestBufferRejectsTypeChange(t *testing.T) {
	buf := NewBuffer("s1", mocks.NewMemStore(), slog.Default())
	now := time.Now()

	if err := buf.Append(types.SensorReading{Metric: "power", Value: types.Float(100), Timestamp: now}); err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	err := buf.Append(types.SensorReading{Metric: "power", Value: types.Bool(true), Timestamp: now.Add(time.Second)})
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError on type change, got %v", err)
	}
}

func TestBufferBackpressureDropsOldestPage(t *testing.T) {
	buf := NewBuffer("s1", mocks.NewMemStore(), slog.Default())
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// Seal more pages than the cap without ever flushing.
	appendFloats(t, buf, "power", start, ChunkCapacity*(maxSealedPages+2), 210)

	appended, dropped := buf.Stats()
	if appended != ChunkCapacity*(maxSealedPages+2) {
		t.Errorf("Appended count wrong: %d", appended)
	}
	if dropped != ChunkCapacity {
		t.Errorf("Expected exactly one dropped page (%d samples), got %d", ChunkCapacity, dropped)
	}
}

func TestBufferKeepsUnflushedOnStoreFailure(t *testing.T) {
	fail := true
	store := &mocks.MockChunkStore{
		PutChunkFunc: func(ctx context.Context, chunk *types.StreamChunk) error {
			if fail {
				return errors.New("disk full")
			}
			return nil
		},
	}
	buf := NewBuffer("s1", store, slog.Default())
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	appendFloats(t, buf, "power", start, ChunkCapacity, 200)

	err := buf.FlushSealed(context.Background())
	var dErr *types.DurabilityError
	if !errors.As(err, &dErr) {
		t.Fatalf("Expected DurabilityError, got %v", err)
	}

	// The page survived the failure and flushes once the store recovers.
	fail = false
	if err := buf.FlushSealed(context.Background()); err != nil {
		t.Fatalf("Flush after recovery failed: %v", err)
	}
	if buf.FlushedIndex("power") != 1 {
		t.Errorf("Expected 1 flushed chunk after recovery, got %d", buf.FlushedIndex("power"))
	}
}

func TestBufferRetriedFullFlushWritesEachSampleOnce(t *testing.T) {
	mem := mocks.NewMemStore()
	fail := true
	store := &mocks.MockChunkStore{
		PutChunkFunc: func(ctx context.Context, chunk *types.StreamChunk) error {
			if fail {
				return errors.New("store unavailable")
			}
			return mem.PutChunk(ctx, chunk)
		},
	}
	buf := NewBuffer("s1", store, slog.Default())
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	appendFloats(t, buf, "power", start, 10, 200)

	err := buf.FlushAll(context.Background())
	var dErr *types.DurabilityError
	if !errors.As(err, &dErr) {
		t.Fatalf("Expected DurabilityError, got %v", err)
	}

	// A retried full flush must not persist the open page twice.
	fail = false
	if err := buf.FlushAll(context.Background()); err != nil {
		t.Fatalf("Retried FlushAll failed: %v", err)
	}

	chunks, _ := mem.ListChunks(context.Background(), "s1")
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk after retried flush, got %d", len(chunks))
	}
	if chunks[0].SampleCount != 10 || chunks[0].Index != 0 {
		t.Errorf("Chunk shape wrong: count=%d index=%d", chunks[0].SampleCount, chunks[0].Index)
	}
}
