package shared

import (
	"context"

	"github.com/pulsetrack/recorder/pkg/types"
)

// --- Persistence Interfaces ---

// SessionStore persists RecordingSession records keyed by session id.
type SessionStore interface {
	PutSession(ctx context.Context, session *types.RecordingSession) error
	GetSession(ctx context.Context, id string) (*types.RecordingSession, error)
	UpdateSession(ctx context.Context, id string, data map[string]interface{}) error
	DeleteSession(ctx context.Context, id string) error
}

// ChunkStore persists immutable StreamChunk pages keyed by session id,
// metric and chunk index. Written by the ingestion buffer, read by the
// aggregator, deleted by the submission machine on acknowledged success.
type ChunkStore interface {
	PutChunk(ctx context.Context, chunk *types.StreamChunk) error
	ListChunks(ctx context.Context, sessionID string) ([]*types.StreamChunk, error)
	DeleteChunks(ctx context.Context, sessionID string) error
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// --- Messaging Interfaces ---

type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) (string, error)
}

// --- Upload Interfaces ---

// Uploader sends the finished payload to the remote endpoint and returns
// its acknowledgement. Implementations map failures onto the types error
// taxonomy (NetworkError, AuthError, ValidationError).
type Uploader interface {
	Upload(ctx context.Context, payload *types.UploadPayload) (*types.UploadAck, error)
}

// --- External Collaborators ---

// ProfileProvider supplies the read-only athlete profile.
type ProfileProvider interface {
	Profile(ctx context.Context, ownerID string) (*types.AthleteProfile, error)
}

// PermissionChecker gates recording on sensor/location access.
type PermissionChecker interface {
	CheckRecording(ctx context.Context) error
}
