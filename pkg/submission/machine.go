// Package submission orchestrates the finishing pipeline: prepare ->
// aggregate -> compute -> compress -> ready -> upload -> success/error.
// Local raw data is deleted only after the remote upload is acknowledged.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	shared "github.com/pulsetrack/recorder/pkg"
	"github.com/pulsetrack/recorder/pkg/compress"
	"github.com/pulsetrack/recorder/pkg/export"
	"github.com/pulsetrack/recorder/pkg/metrics"
	"github.com/pulsetrack/recorder/pkg/streams"
	"github.com/pulsetrack/recorder/pkg/types"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePreparing   Phase = "preparing"
	PhaseAggregating Phase = "aggregating"
	PhaseComputing   Phase = "computing"
	PhaseCompressing Phase = "compressing"
	PhaseReady       Phase = "ready"
	PhaseUploading   Phase = "uploading"
	PhaseSuccess     Phase = "success"
	PhaseError       Phase = "error"
)

// steps, in pipeline order, for PeekStep. Progress percentages are the
// cumulative weight reached when the step starts.
var steps = []struct {
	phase   Phase
	percent float64
}{
	{PhasePreparing, 0},
	{PhaseAggregating, 10},
	{PhaseComputing, 40},
	{PhaseCompressing, 70},
	{PhaseReady, 90},
	{PhaseUploading, 90},
	{PhaseSuccess, 100},
}

// Progress is broadcast to subscribers as phases advance. Percent is
// monotonically increasing until a reset.
type Progress struct {
	Phase   Phase
	Percent float64
	Message string
}

// Machine drives one session through the submission pipeline.
type Machine struct {
	mu       sync.Mutex
	logger   *slog.Logger
	sessions shared.SessionStore
	chunks   shared.ChunkStore
	blobs    shared.BlobStore
	uploader shared.Uploader
	profiles shared.ProfileProvider
	computer *metrics.Computer
	codec    *compress.Codec

	artifactBucket string

	phase    Phase
	percent  float64
	session  *types.RecordingSession
	payload  *types.UploadPayload
	remoteID string
	lastErr  error

	subs    map[int]chan Progress
	nextSub int
}

type Deps struct {
	Sessions       shared.SessionStore
	Chunks         shared.ChunkStore
	Blobs          shared.BlobStore
	Uploader       shared.Uploader
	Profiles       shared.ProfileProvider
	Computer       *metrics.Computer
	Codec          *compress.Codec
	ArtifactBucket string
	Logger         *slog.Logger
}

func New(deps Deps) *Machine {
	bucket := deps.ArtifactBucket
	if bucket == "" {
		bucket = shared.DefaultArtifactBucket
	}
	return &Machine{
		logger:         deps.Logger.With("component", "submission"),
		sessions:       deps.Sessions,
		chunks:         deps.Chunks,
		blobs:          deps.Blobs,
		uploader:       deps.Uploader,
		profiles:       deps.Profiles,
		computer:       deps.Computer,
		codec:          deps.Codec,
		artifactBucket: bucket,
		phase:          PhaseIdle,
		subs:           make(map[int]chan Progress),
	}
}

// Subscribe returns a progress channel and a cancel func. Slow consumers
// miss updates rather than blocking the pipeline.
func (m *Machine) Subscribe() (<-chan Progress, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Progress, 16)
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Machine) setPhase(phase Phase, percent float64, msg string) {
	m.mu.Lock()
	m.phase = phase
	if percent > m.percent {
		m.percent = percent
	}
	p := Progress{Phase: phase, Percent: m.percent, Message: msg}
	for _, ch := range m.subs {
		select {
		case ch <- p:
		default:
		}
	}
	m.mu.Unlock()
}

// PeekStep returns the name of the i-th pipeline step, so consumers can
// render "what's next" without reaching into the machine's internals.
func (m *Machine) PeekStep(i int) (string, bool) {
	if i < 0 || i >= len(steps) {
		return "", false
	}
	return string(steps[i].phase), true
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Percent returns current progress, 0-100.
func (m *Machine) Percent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.percent
}

// Err returns the retained failure from the last submit or prepare.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Summary returns the prepared summary, or nil before ready.
func (m *Machine) Summary() *types.ActivitySummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil
	}
	snapshot := *m.payload.Summary
	return &snapshot
}

// Prepare runs aggregation, computation and compression for a finished
// session and parks the machine in ready. Calling it again while the
// machine is not idle is a no-op, so a double-tap cannot recompute or
// double-run the pipeline.
func (m *Machine) Prepare(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if m.phase != PhaseIdle {
		phase := m.phase
		m.mu.Unlock()
		m.logger.Debug("Prepare ignored, machine not idle", "phase", phase)
		return nil
	}
	m.phase = PhasePreparing
	m.percent = 0
	m.mu.Unlock()

	if err := m.prepare(ctx, sessionID); err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		m.setPhase(PhaseError, m.Percent(), err.Error())
		return err
	}
	return nil
}

func (m *Machine) prepare(ctx context.Context, sessionID string) error {
	m.setPhase(PhasePreparing, 0, "loading session")
	session, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return &types.ValidationError{Field: "session", Reason: fmt.Sprintf("load %s: %v", sessionID, err)}
	}
	if session.State != types.SessionFinished || session.StartedAt == nil || session.FinishedAt == nil {
		return &types.ValidationError{Field: "session", Reason: "submission requires a finished session with start and end timestamps"}
	}

	profile, err := m.profiles.Profile(ctx, session.OwnerID)
	if err != nil {
		return &types.ValidationError{Field: "profile", Reason: err.Error()}
	}

	m.setPhase(PhaseAggregating, 10, "reconstructing streams")
	chunks, err := m.chunks.ListChunks(ctx, sessionID)
	if err != nil {
		return &types.DurabilityError{Op: "list chunks", Err: err}
	}
	aggregated, err := streams.Aggregate(chunks)
	if err != nil {
		return err
	}

	m.setPhase(PhaseComputing, 40, "computing summary")
	summary, err := m.computer.Compute(m.logger, profile, aggregated, session)
	if err != nil {
		return err
	}

	m.setPhase(PhaseCompressing, 70, "compressing streams")
	compressed := make([]types.CompressedStream, 0, len(aggregated))
	for _, s := range aggregated {
		cs, err := m.codec.Compress(s)
		if err != nil {
			return err
		}
		compressed = append(compressed, *cs)
	}

	// FIT artifact is best-effort: the upload payload does not depend on
	// it, so a generation or storage failure must not fail the prepare.
	if fitData, err := export.GenerateFitFile(summary, aggregated); err != nil {
		m.logger.Warn("FIT artifact generation failed", "error", err)
	} else {
		object := fmt.Sprintf("sessions/%s/activity.fit", sessionID)
		if err := m.blobs.Write(ctx, m.artifactBucket, object, fitData); err != nil {
			m.logger.Warn("FIT artifact write failed", "error", err)
		}
	}

	m.mu.Lock()
	m.session = session
	m.payload = &types.UploadPayload{Summary: summary, Streams: compressed}
	m.mu.Unlock()

	m.setPhase(PhaseReady, 90, "ready for review")
	m.logger.Info("Submission prepared",
		"session_id", sessionID,
		"streams", len(compressed),
		"elapsed_sec", summary.ElapsedSec,
	)
	return nil
}

// UpdateSummary edits the free-text fields of the prepared summary
// without re-running aggregation or computation. Only legal in ready.
func (m *Machine) UpdateSummary(name, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseReady {
		return &types.InvalidTransitionError{From: string(m.phase), Action: "update summary"}
	}
	m.payload.Summary.Name = name
	m.payload.Summary.Notes = notes
	return nil
}

// Submit uploads the prepared payload. Valid from ready, and again from
// error with the retained payload - without recomputation. It can never
// run twice concurrently or after success, so a double submit cannot
// produce two uploads. Local raw data is deleted only after the remote
// acknowledgement arrives.
func (m *Machine) Submit(ctx context.Context) (*types.UploadAck, error) {
	m.mu.Lock()
	if m.phase != PhaseReady && m.phase != PhaseError {
		phase := m.phase
		m.mu.Unlock()
		return nil, &types.InvalidTransitionError{From: string(phase), Action: "submit"}
	}
	if m.payload == nil {
		m.mu.Unlock()
		return nil, &types.ValidationError{Field: "payload", Reason: "nothing prepared to submit"}
	}
	payload := m.payload
	session := m.session
	// Claim the uploading phase before releasing the lock, so a second
	// submit racing the first cannot also pass the gate.
	m.phase = PhaseUploading
	m.mu.Unlock()

	m.setPhase(PhaseUploading, 90, "uploading")
	ack, err := m.uploader.Upload(ctx, payload)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		m.setPhase(PhaseError, m.Percent(), err.Error())
		m.logger.Error("Upload failed", "session_id", session.ID, "error", err)
		return nil, err
	}

	// Acknowledged: now, and only now, the local raw data may go.
	if err := m.chunks.DeleteChunks(ctx, session.ID); err != nil {
		m.logger.Warn("Failed to delete local chunks after ack", "session_id", session.ID, "error", err)
	}
	if err := m.sessions.DeleteSession(ctx, session.ID); err != nil {
		m.logger.Warn("Failed to delete local session after ack", "session_id", session.ID, "error", err)
	}

	m.mu.Lock()
	m.remoteID = ack.RemoteID
	m.lastErr = nil
	m.mu.Unlock()
	m.setPhase(PhaseSuccess, 100, "uploaded as "+ack.RemoteID)
	m.logger.Info("Upload acknowledged", "session_id", session.ID, "remote_id", ack.RemoteID)
	return ack, nil
}

// Retry forces a full reset to idle, discarding the prepared payload.
// Only legal from error; re-submitting the retained payload instead goes
// through Submit.
func (m *Machine) Retry() error {
	m.mu.Lock()
	if m.phase != PhaseError {
		phase := m.phase
		m.mu.Unlock()
		return &types.InvalidTransitionError{From: string(phase), Action: "retry"}
	}
	m.phase = PhaseIdle
	m.percent = 0
	m.payload = nil
	m.session = nil
	m.lastErr = nil
	m.mu.Unlock()
	m.setPhase(PhaseIdle, 0, "reset")
	return nil
}

// PayloadJSON renders the prepared payload, mainly for artifact snapshots
// and the HTTP surface.
func (m *Machine) PayloadJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil, &types.ValidationError{Field: "payload", Reason: "nothing prepared"}
	}
	return json.Marshal(m.payload)
}

// RemoteID returns the acknowledged remote id after success.
func (m *Machine) RemoteID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteID
}
