// recorderd exposes the recording pipeline over HTTP: session lifecycle,
// reading ingestion and the submission flow, with state changes fanned
// out as CloudEvents.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	shared "github.com/pulsetrack/recorder/pkg"
	"github.com/pulsetrack/recorder/pkg/bootstrap"
	"github.com/pulsetrack/recorder/pkg/compress"
	"github.com/pulsetrack/recorder/pkg/infrastructure/oauth"
	infrapubsub "github.com/pulsetrack/recorder/pkg/infrastructure/pubsub"
	"github.com/pulsetrack/recorder/pkg/infrastructure/sentry"
	"github.com/pulsetrack/recorder/pkg/infrastructure/upload"
	"github.com/pulsetrack/recorder/pkg/metrics"
	"github.com/pulsetrack/recorder/pkg/recorder"
	"github.com/pulsetrack/recorder/pkg/submission"
	"github.com/pulsetrack/recorder/pkg/types"
)

type server struct {
	logger *slog.Logger
	svc    *bootstrap.Service
	rec    *recorder.Recorder
	sub    *submission.Machine
}

// permissionChecker gates recording on an env switch so local runs can
// simulate revoked sensor access.
type permissionChecker struct{}

func (permissionChecker) CheckRecording(ctx context.Context) error {
	if os.Getenv("DENY_RECORDING") == "true" {
		return errors.New("recording permission denied")
	}
	return nil
}

func main() {
	ctx := context.Background()

	logger := bootstrap.NewLogger("recorderd", false)

	if err := sentry.Init(sentry.Config{
		DSN:         os.Getenv("SENTRY_DSN"),
		Environment: os.Getenv("ENVIRONMENT"),
		ServerName:  "recorderd",
	}, logger); err != nil {
		logger.Warn("Sentry disabled", "error", err)
	}
	defer sentry.Flush(2 * time.Second)

	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		logger.Error("Bootstrap failed", "error", err)
		os.Exit(1)
	}

	codec, err := compress.NewCodec()
	if err != nil {
		logger.Error("Codec init failed", "error", err)
		os.Exit(1)
	}

	rec := recorder.New(svc.Sessions, svc.Chunks, permissionChecker{}, logger)
	sub := submission.New(submission.Deps{
		Sessions:       svc.Sessions,
		Chunks:         svc.Chunks,
		Blobs:          svc.Store,
		Uploader:       upload.NewClient(svc.Config.UploadURL, oauth.EnvTokenSource(svc.Config.UploadTokenVar)),
		Profiles:       svc.Profiles,
		Computer:       metrics.NewComputer(metrics.DefaultConfig()),
		Codec:          codec,
		ArtifactBucket: svc.Config.GCSArtifactBucket,
		Logger:         logger,
	})

	s := &server{logger: logger, svc: svc, rec: rec, sub: sub}
	go s.bridgeSessionEvents(ctx)
	go s.bridgeSubmissionEvents(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.startSession)
		r.Get("/sessions/current", s.currentSession)
		r.Post("/sessions/current/readings", s.appendReadings)
		r.Post("/sessions/current/pause", s.lifecycle(rec.Pause))
		r.Post("/sessions/current/resume", s.lifecycle(rec.Resume))
		r.Post("/sessions/current/finish", s.finishSession)
		r.Delete("/sessions/current", s.lifecycle(rec.Discard))

		r.Post("/submission/prepare", s.prepareSubmission)
		r.Get("/submission", s.submissionStatus)
		r.Patch("/submission/summary", s.updateSummary)
		r.Post("/submission/submit", s.submit)
		r.Post("/submission/retry", s.retrySubmission)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("Listening", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// bridgeSessionEvents republishes lifecycle transitions as CloudEvents.
func (s *server) bridgeSessionEvents(ctx context.Context) {
	defer sentry.RecoverAndCapture(s.logger)
	ch, cancel := s.rec.Subscribe()
	defer cancel()
	for change := range ch {
		event, err := infrapubsub.NewCloudEvent(
			infrapubsub.EventSourceRecorder,
			infrapubsub.EventSessionStateChanged,
			change,
		)
		if err != nil {
			s.logger.Error("Failed to build session event", "error", err)
			continue
		}
		data, _ := json.Marshal(event)
		if _, err := s.svc.Pub.Publish(ctx, shared.TopicSessionState, data); err != nil {
			s.logger.Warn("Failed to publish session event", "error", err)
		}
	}
}

func (s *server) bridgeSubmissionEvents(ctx context.Context) {
	defer sentry.RecoverAndCapture(s.logger)
	ch, cancel := s.sub.Subscribe()
	defer cancel()
	for progress := range ch {
		event, err := infrapubsub.NewCloudEvent(
			infrapubsub.EventSourceRecorder,
			infrapubsub.EventSubmissionStateChanged,
			progress,
		)
		if err != nil {
			s.logger.Error("Failed to build submission event", "error", err)
			continue
		}
		data, _ := json.Marshal(event)
		if _, err := s.svc.Pub.Publish(ctx, shared.TopicSubmissionState, data); err != nil {
			s.logger.Warn("Failed to publish submission event", "error", err)
		}
	}
}

type startRequest struct {
	OwnerID string             `json:"owner_id"`
	Kind    types.ActivityKind `json:"kind"`
	PlanID  string             `json:"plan_id,omitempty"`
}

func (s *server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &types.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	session, err := s.rec.Start(r.Context(), req.OwnerID, req.Kind, req.PlanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *server) currentSession(w http.ResponseWriter, _ *http.Request) {
	session := s.rec.Session()
	if session == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type readingRequest struct {
	Metric    string    `json:"metric"`
	Type      string    `json:"type"`
	Value     float64   `json:"value,omitempty"`
	Flag      bool      `json:"flag,omitempty"`
	Lat       float64   `json:"lat,omitempty"`
	Lon       float64   `json:"lon,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id,omitempty"`
	Suspect   bool      `json:"suspect,omitempty"`
}

func (req *readingRequest) toReading() (types.SensorReading, error) {
	var value types.Value
	switch types.DataType(req.Type) {
	case types.DataTypeFloat:
		value = types.Float(req.Value)
	case types.DataTypeBool:
		value = types.Bool(req.Flag)
	case types.DataTypeCoord:
		value = types.Coord{Lat: req.Lat, Lon: req.Lon}
	default:
		return types.SensorReading{}, &types.ValidationError{Field: "type", Reason: "unknown data type " + req.Type}
	}
	return types.SensorReading{
		Metric:    req.Metric,
		Value:     value,
		Timestamp: req.Timestamp,
		DeviceID:  req.DeviceID,
		Suspect:   req.Suspect,
	}, nil
}

// appendReadings ingests a batch. Each reading is accepted or rejected
// individually; the response reports both counts.
func (s *server) appendReadings(w http.ResponseWriter, r *http.Request) {
	var reqs []readingRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, &types.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	accepted, rejected := 0, 0
	for i := range reqs {
		reading, err := reqs[i].toReading()
		if err != nil {
			rejected++
			continue
		}
		if err := s.rec.Append(r.Context(), reading); err != nil {
			var vErr *types.ValidationError
			if errors.As(err, &vErr) {
				rejected++
				continue
			}
			// Durability and transition failures abort the whole batch.
			writeError(w, err)
			return
		}
		accepted++
	}
	writeJSON(w, http.StatusOK, map[string]int{"accepted": accepted, "rejected": rejected})
}

func (s *server) lifecycle(op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) finishSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.rec.Finish(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type prepareRequest struct {
	SessionID string `json:"session_id"`
}

func (s *server) prepareSubmission(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &types.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if err := s.sub.Prepare(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	s.submissionStatus(w, r)
}

func (s *server) submissionStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{
		"phase":   s.sub.Phase(),
		"percent": s.sub.Percent(),
	}
	if summary := s.sub.Summary(); summary != nil {
		status["summary"] = summary
	}
	if err := s.sub.Err(); err != nil {
		status["error"] = err.Error()
	}
	if remoteID := s.sub.RemoteID(); remoteID != "" {
		status["remote_id"] = remoteID
	}
	writeJSON(w, http.StatusOK, status)
}

type summaryPatch struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

func (s *server) updateSummary(w http.ResponseWriter, r *http.Request) {
	var patch summaryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, &types.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if err := s.sub.UpdateSummary(patch.Name, patch.Notes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sub.Summary())
}

func (s *server) submit(w http.ResponseWriter, r *http.Request) {
	ack, err := s.sub.Submit(r.Context())
	if err != nil {
		sentry.CaptureException(err, map[string]interface{}{"phase": s.sub.Phase()}, s.logger)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *server) retrySubmission(w http.ResponseWriter, _ *http.Request) {
	if err := s.sub.Retry(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the pipeline error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		vErr *types.ValidationError
		tErr *types.InvalidTransitionError
		pErr *types.PermissionError
		aErr *types.AuthError
		nErr *types.NetworkError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
	case errors.As(err, &tErr):
		status = http.StatusConflict
	case errors.As(err, &pErr):
		status = http.StatusForbidden
	case errors.As(err, &aErr):
		status = http.StatusUnauthorized
	case errors.As(err, &nErr):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
