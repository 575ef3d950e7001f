package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	shared "github.com/pulsetrack/recorder/pkg"
	"github.com/pulsetrack/recorder/pkg/types"
)

// StateChange is broadcast to subscribers on every lifecycle transition.
type StateChange struct {
	SessionID string
	From      types.SessionState
	To        types.SessionState
	At        time.Time
}

// allowed lifecycle transitions, keyed by current state.
var transitions = map[types.SessionState][]types.SessionState{
	types.SessionPending:   {types.SessionRecording},
	types.SessionReady:     {types.SessionRecording},
	types.SessionRecording: {types.SessionPaused, types.SessionFinished, types.SessionDiscarded},
	types.SessionPaused:    {types.SessionRecording, types.SessionFinished, types.SessionDiscarded},
}

func canTransition(from, to types.SessionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Recorder is the session lifecycle state machine. At most one session is
// active per Recorder. It owns its subscriber list; there is no global
// event bus.
type Recorder struct {
	mu       sync.Mutex
	logger   *slog.Logger
	sessions shared.SessionStore
	chunks   shared.ChunkStore
	perms    shared.PermissionChecker

	session     *types.RecordingSession
	buf         *Buffer
	pausedAt    *time.Time
	pausedTotal time.Duration

	subs    map[int]chan StateChange
	nextSub int
}

func New(sessions shared.SessionStore, chunks shared.ChunkStore, perms shared.PermissionChecker, logger *slog.Logger) *Recorder {
	return &Recorder{
		logger:   logger.With("component", "recorder"),
		sessions: sessions,
		chunks:   chunks,
		perms:    perms,
		subs:     make(map[int]chan StateChange),
	}
}

// Subscribe returns a channel of state changes and a cancel func. The
// channel is buffered; a slow subscriber loses events rather than
// blocking transitions.
func (r *Recorder) Subscribe() (<-chan StateChange, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan StateChange, 16)
	r.subs[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

func (r *Recorder) notifyLocked(change StateChange) {
	for _, ch := range r.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (r *Recorder) transitionLocked(ctx context.Context, to types.SessionState) error {
	from := r.session.State
	if !canTransition(from, to) {
		return &types.InvalidTransitionError{From: string(from), Action: "transition to " + string(to)}
	}
	r.session.State = to
	if err := r.sessions.UpdateSession(ctx, r.session.ID, map[string]interface{}{"state": to}); err != nil {
		r.session.State = from
		return &types.DurabilityError{Op: "persist state " + string(to), Err: err}
	}
	r.notifyLocked(StateChange{SessionID: r.session.ID, From: from, To: to, At: time.Now()})
	return nil
}

// Start creates and persists a new session and begins recording. It fails
// with a PermissionError when required sensor/location access is
// unavailable, and refuses to start while another session is active.
func (r *Recorder) Start(ctx context.Context, ownerID string, kind types.ActivityKind, planID string) (*types.RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil && !r.session.State.Terminal() {
		return nil, &types.InvalidTransitionError{From: string(r.session.State), Action: "start"}
	}
	if err := r.perms.CheckRecording(ctx); err != nil {
		return nil, &types.PermissionError{Scope: "sensor/location"}
	}

	now := time.Now()
	session := &types.RecordingSession{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		State:            types.SessionPending,
		Kind:             kind,
		PlanID:           planID,
		StartedAt:        &now,
		LastCheckpointAt: now,
	}
	if err := r.sessions.PutSession(ctx, session); err != nil {
		return nil, &types.DurabilityError{Op: "create session", Err: err}
	}

	r.session = session
	r.buf = NewBuffer(session.ID, r.chunks, r.logger)
	r.pausedAt = nil
	r.pausedTotal = 0

	if err := r.transitionLocked(ctx, types.SessionRecording); err != nil {
		return nil, err
	}
	r.logger.Info("Session started", "session_id", session.ID, "kind", kind)
	snapshot := *session
	return &snapshot, nil
}

// Append ingests one reading. Legal while recording or paused; readings
// taken during a pause land alongside a true sample on the paused marker
// stream, so downstream consumers can tag them.
func (r *Recorder) Append(ctx context.Context, reading types.SensorReading) error {
	r.mu.Lock()
	if r.session == nil || (r.session.State != types.SessionRecording && r.session.State != types.SessionPaused) {
		state := "none"
		if r.session != nil {
			state = string(r.session.State)
		}
		r.mu.Unlock()
		return &types.InvalidTransitionError{From: state, Action: "append"}
	}
	buf := r.buf
	r.mu.Unlock()

	if err := buf.Append(reading); err != nil {
		return err
	}
	// Opportunistic durable flush of any page the append sealed.
	if err := buf.FlushSealed(ctx); err != nil {
		r.logger.Error("Durable flush failed, aborting session", "error", err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.DataPointsRecorded++
	r.session.LastCheckpointAt = time.Now()
	return nil
}

// Pause halts moving-time accrual. Ingestion continues; a paused=true
// marker is appended so the pause interval survives into the streams.
func (r *Recorder) Pause(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return &types.InvalidTransitionError{From: "none", Action: "pause"}
	}
	if err := r.transitionLocked(ctx, types.SessionPaused); err != nil {
		return err
	}
	now := time.Now()
	r.pausedAt = &now
	if err := r.buf.Append(types.SensorReading{Metric: shared.MetricPaused, Value: types.Bool(true), Timestamp: now}); err != nil {
		r.logger.Warn("Pause marker rejected, boundary lost from streams", "session_id", r.session.ID, "error", err)
	}
	return nil
}

// Resume returns from paused to recording.
func (r *Recorder) Resume(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return &types.InvalidTransitionError{From: "none", Action: "resume"}
	}
	if r.session.State != types.SessionPaused {
		return &types.InvalidTransitionError{From: string(r.session.State), Action: "resume"}
	}
	if err := r.transitionLocked(ctx, types.SessionRecording); err != nil {
		return err
	}
	now := time.Now()
	if r.pausedAt != nil {
		r.pausedTotal += now.Sub(*r.pausedAt)
		r.pausedAt = nil
	}
	if err := r.buf.Append(types.SensorReading{Metric: shared.MetricPaused, Value: types.Bool(false), Timestamp: now}); err != nil {
		r.logger.Warn("Resume marker rejected, boundary lost from streams", "session_id", r.session.ID, "error", err)
	}
	return nil
}

// Finish ends the session. Any buffered-but-unflushed readings are forced
// to durable chunks before the transition completes; a flush failure
// aborts the finish and surfaces as a DurabilityError.
func (r *Recorder) Finish(ctx context.Context) (*types.RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, &types.InvalidTransitionError{From: "none", Action: "finish"}
	}
	if !canTransition(r.session.State, types.SessionFinished) {
		return nil, &types.InvalidTransitionError{From: string(r.session.State), Action: "finish"}
	}
	if r.session.StartedAt == nil {
		return nil, &types.ValidationError{Field: "startedAt", Reason: "cannot finish a session that never started"}
	}

	// Durability before transition.
	if err := r.buf.FlushAll(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	if r.pausedAt != nil {
		r.pausedTotal += now.Sub(*r.pausedAt)
		r.pausedAt = nil
	}
	r.session.FinishedAt = &now
	r.session.TotalElapsedSec = now.Sub(*r.session.StartedAt).Seconds()
	r.session.MovingSec = r.session.TotalElapsedSec - r.pausedTotal.Seconds()
	appended, dropped := r.buf.Stats()
	r.session.DataPointsRecorded = appended

	if err := r.sessions.UpdateSession(ctx, r.session.ID, map[string]interface{}{
		"finishedAt":         now,
		"totalElapsedSec":    r.session.TotalElapsedSec,
		"movingSec":          r.session.MovingSec,
		"dataPointsRecorded": appended,
	}); err != nil {
		return nil, &types.DurabilityError{Op: "persist finish", Err: err}
	}
	if err := r.transitionLocked(ctx, types.SessionFinished); err != nil {
		return nil, err
	}

	r.logger.Info("Session finished",
		"session_id", r.session.ID,
		"elapsed_sec", r.session.TotalElapsedSec,
		"data_points", appended,
		"dropped", dropped,
	)
	snapshot := *r.session
	return &snapshot, nil
}

// Discard abandons the session and deletes its local data. Also legal
// after a completed finish, so a user can throw away a finished session
// that was never submitted.
func (r *Recorder) Discard(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return &types.InvalidTransitionError{From: "none", Action: "discard"}
	}
	from := r.session.State
	if !canTransition(from, types.SessionDiscarded) && from != types.SessionFinished {
		return &types.InvalidTransitionError{From: string(from), Action: "discard"}
	}

	if err := r.chunks.DeleteChunks(ctx, r.session.ID); err != nil {
		return &types.DurabilityError{Op: "delete chunks", Err: err}
	}
	if err := r.sessions.DeleteSession(ctx, r.session.ID); err != nil {
		return &types.DurabilityError{Op: "delete session", Err: err}
	}

	r.session.State = types.SessionDiscarded
	r.notifyLocked(StateChange{SessionID: r.session.ID, From: from, To: types.SessionDiscarded, At: time.Now()})
	r.logger.Info("Session discarded", "session_id", r.session.ID)
	return nil
}

// Session returns a copy of the active session, or nil.
func (r *Recorder) Session() *types.RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	snapshot := *r.session
	return &snapshot
}
