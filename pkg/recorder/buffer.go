// Package recorder owns the live side of a session: the ingestion buffer
// that pages sensor readings into durable chunks, and the lifecycle state
// machine that gates when ingestion and finishing are legal.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	shared "github.com/pulsetrack/recorder/pkg"
	"github.com/pulsetrack/recorder/pkg/streams"
	"github.com/pulsetrack/recorder/pkg/types"
)

const (
	// ChunkCapacity is the number of samples per durable page.
	ChunkCapacity = 256

	// JitterTolerance bounds how far behind the last flushed timestamp a
	// reading may arrive before it is rejected. Flushed chunks are
	// immutable and never rewritten.
	JitterTolerance = 5 * time.Second

	// maxSealedPages caps unflushed sealed pages per metric. When durable
	// flushing falls behind the sensor rate, the oldest sealed page is
	// dropped rather than letting memory grow without bound.
	maxSealedPages = 4
)

// page is an open in-memory column of samples for one metric.
type page struct {
	floats []float64
	bools  []bool
	coords []types.Coordinate
	times  []time.Time
}

func (p *page) len() int { return len(p.times) }

type metricBuffer struct {
	dtype       types.DataType
	open        page
	sealed      []page
	nextIndex   int
	lastFlushed time.Time // max timestamp of the last durably flushed page
}

// Buffer pages tagged readings per metric and flushes full pages to the
// chunk store. Append is O(1) amortized and safe for concurrent sensor
// sources; order is preserved per metric, not globally.
type Buffer struct {
	mu        sync.Mutex
	sessionID string
	store     shared.ChunkStore
	logger    *slog.Logger
	metrics   map[string]*metricBuffer
	appended  int
	dropped   int
}

func NewBuffer(sessionID string, store shared.ChunkStore, logger *slog.Logger) *Buffer {
	return &Buffer{
		sessionID: sessionID,
		store:     store,
		logger:    logger.With("component", "ingestion-buffer"),
		metrics:   make(map[string]*metricBuffer),
	}
}

// Append buffers one reading. Readings older than the metric's last
// flushed timestamp by more than JitterTolerance are rejected with a
// ValidationError. Out-of-order arrivals inside the tolerance window are
// insertion-sorted into the open page.
func (b *Buffer) Append(r types.SensorReading) error {
	if r.Metric == "" {
		return &types.ValidationError{Field: "metric", Reason: "empty metric name"}
	}
	if r.Value == nil {
		return &types.ValidationError{Field: r.Metric, Reason: "nil value"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	mb, ok := b.metrics[r.Metric]
	if !ok {
		mb = &metricBuffer{dtype: r.Value.DataType()}
		b.metrics[r.Metric] = mb
	}
	if r.Value.DataType() != mb.dtype {
		return &types.ValidationError{Field: r.Metric, Reason: "data type changed mid-stream"}
	}
	if !mb.lastFlushed.IsZero() && mb.lastFlushed.Sub(r.Timestamp) > JitterTolerance {
		return &types.ValidationError{Field: r.Metric, Reason: "reading older than last flushed chunk beyond jitter tolerance"}
	}

	insertSorted(&mb.open, r)
	b.appended++

	if mb.open.len() >= ChunkCapacity {
		mb.sealed = append(mb.sealed, mb.open)
		mb.open = page{}
		if len(mb.sealed) > maxSealedPages {
			// Backpressure: drop the oldest unflushed page.
			b.dropped += mb.sealed[0].len()
			mb.sealed = mb.sealed[1:]
			b.logger.Warn("durable flush behind sensor rate, dropped oldest unflushed page",
				"metric", r.Metric, "dropped_total", b.dropped)
		}
	}
	return nil
}

// insertSorted appends the reading, keeping the page ordered by timestamp.
// Arrival is almost always in order, so the scan from the tail is short.
func insertSorted(p *page, r types.SensorReading) {
	pos := len(p.times)
	for pos > 0 && p.times[pos-1].After(r.Timestamp) {
		pos--
	}
	p.times = append(p.times, time.Time{})
	copy(p.times[pos+1:], p.times[pos:])
	p.times[pos] = r.Timestamp

	switch v := r.Value.(type) {
	case types.Float:
		p.floats = append(p.floats, 0)
		copy(p.floats[pos+1:], p.floats[pos:])
		p.floats[pos] = float64(v)
	case types.Bool:
		p.bools = append(p.bools, false)
		copy(p.bools[pos+1:], p.bools[pos:])
		p.bools[pos] = bool(v)
	case types.Coord:
		p.coords = append(p.coords, types.Coordinate{})
		copy(p.coords[pos+1:], p.coords[pos:])
		p.coords[pos] = types.Coordinate(v)
	}
}

// FlushSealed durably writes every sealed page. Called opportunistically
// between appends; a store failure is a DurabilityError and aborts the
// session rather than continuing with gaps.
func (b *Buffer) FlushSealed(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx, false)
}

// FlushAll writes every sealed page plus the open partial page of each
// metric. Called by the state machine before the finish transition
// completes, so no buffered reading can be lost to the transition.
func (b *Buffer) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx, true)
}

func (b *Buffer) flushLocked(ctx context.Context, includeOpen bool) error {
	for metric, mb := range b.metrics {
		// Seal the open page before writing anything, so a store failure
		// leaves each sample in exactly one place and a retried flush
		// writes it exactly once.
		if includeOpen && mb.open.len() > 0 {
			mb.sealed = append(mb.sealed, mb.open)
			mb.open = page{}
		}
		flushed := 0
		for _, p := range mb.sealed {
			chunk := encodePage(b.sessionID, metric, mb.dtype, mb.nextIndex, p)
			if err := b.store.PutChunk(ctx, chunk); err != nil {
				// Drop what was already persisted, keep the rest sealed.
				mb.sealed = mb.sealed[flushed:]
				return &types.DurabilityError{Op: "flush chunk " + metric, Err: err}
			}
			mb.nextIndex++
			mb.lastFlushed = p.times[p.len()-1]
			flushed++
		}
		mb.sealed = nil
	}
	return nil
}

func encodePage(sessionID, metric string, dtype types.DataType, index int, p page) *types.StreamChunk {
	chunk := &types.StreamChunk{
		SessionID:   sessionID,
		Metric:      metric,
		Type:        dtype,
		Index:       index,
		Timestamps:  streams.EncodeTimes(p.times),
		SampleCount: p.len(),
	}
	switch dtype {
	case types.DataTypeFloat:
		chunk.Values = streams.EncodeFloats(p.floats)
	case types.DataTypeBool:
		chunk.Values = streams.EncodeBools(p.bools)
	case types.DataTypeCoord:
		chunk.Values = streams.EncodeCoords(p.coords)
	}
	return chunk
}

// Stats returns total readings accepted and readings dropped by
// backpressure since the buffer was created.
func (b *Buffer) Stats() (appended, dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appended, b.dropped
}

// FlushedIndex returns the next chunk index for a metric, which equals the
// number of chunks durably flushed so far.
func (b *Buffer) FlushedIndex(metric string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mb, ok := b.metrics[metric]; ok {
		return mb.nextIndex
	}
	return 0
}
