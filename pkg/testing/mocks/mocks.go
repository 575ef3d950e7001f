package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pulsetrack/recorder/pkg/types"
)

// --- Mock Session Store ---
type MockSessionStore struct {
	PutSessionFunc    func(ctx context.Context, session *types.RecordingSession) error
	GetSessionFunc    func(ctx context.Context, id string) (*types.RecordingSession, error)
	UpdateSessionFunc func(ctx context.Context, id string, data map[string]interface{}) error
	DeleteSessionFunc func(ctx context.Context, id string) error
}

func (m *MockSessionStore) PutSession(ctx context.Context, session *types.RecordingSession) error {
	if m.PutSessionFunc != nil {
		return m.PutSessionFunc(ctx, session)
	}
	return nil
}
func (m *MockSessionStore) GetSession(ctx context.Context, id string) (*types.RecordingSession, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, id)
	}
	return nil, fmt.Errorf("session not found")
}
func (m *MockSessionStore) UpdateSession(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateSessionFunc != nil {
		return m.UpdateSessionFunc(ctx, id, data)
	}
	return nil
}
func (m *MockSessionStore) DeleteSession(ctx context.Context, id string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, id)
	}
	return nil
}

// --- Mock Chunk Store ---
type MockChunkStore struct {
	PutChunkFunc     func(ctx context.Context, chunk *types.StreamChunk) error
	ListChunksFunc   func(ctx context.Context, sessionID string) ([]*types.StreamChunk, error)
	DeleteChunksFunc func(ctx context.Context, sessionID string) error
}

func (m *MockChunkStore) PutChunk(ctx context.Context, chunk *types.StreamChunk) error {
	if m.PutChunkFunc != nil {
		return m.PutChunkFunc(ctx, chunk)
	}
	return nil
}
func (m *MockChunkStore) ListChunks(ctx context.Context, sessionID string) ([]*types.StreamChunk, error) {
	if m.ListChunksFunc != nil {
		return m.ListChunksFunc(ctx, sessionID)
	}
	return nil, nil
}
func (m *MockChunkStore) DeleteChunks(ctx context.Context, sessionID string) error {
	if m.DeleteChunksFunc != nil {
		return m.DeleteChunksFunc(ctx, sessionID)
	}
	return nil
}

// --- Mock Storage ---
type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}
func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishFunc func(ctx context.Context, topic string, data []byte) (string, error)
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	return "msg-id", nil
}

// --- Mock Uploader ---
type MockUploader struct {
	UploadFunc func(ctx context.Context, payload *types.UploadPayload) (*types.UploadAck, error)
}

func (m *MockUploader) Upload(ctx context.Context, payload *types.UploadPayload) (*types.UploadAck, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, payload)
	}
	return &types.UploadAck{RemoteID: "remote-123"}, nil
}

// --- Mock Profile Provider ---
type MockProfileProvider struct {
	ProfileFunc func(ctx context.Context, ownerID string) (*types.AthleteProfile, error)
}

func (m *MockProfileProvider) Profile(ctx context.Context, ownerID string) (*types.AthleteProfile, error) {
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, ownerID)
	}
	return &types.AthleteProfile{WeightKg: 70, FTPWatts: 250, ThresholdHR: 170, Sex: "male"}, nil
}

// --- Mock Permission Checker ---
type MockPermissionChecker struct {
	CheckRecordingFunc func(ctx context.Context) error
}

func (m *MockPermissionChecker) CheckRecording(ctx context.Context) error {
	if m.CheckRecordingFunc != nil {
		return m.CheckRecordingFunc(ctx)
	}
	return nil
}

// MemStore is an in-memory SessionStore and ChunkStore for tests that
// exercise a full lifecycle without stubbing every call.
type MemStore struct {
	mu       sync.Mutex
	Sessions map[string]*types.RecordingSession
	Chunks   map[string][]*types.StreamChunk
}

func NewMemStore() *MemStore {
	return &MemStore{
		Sessions: make(map[string]*types.RecordingSession),
		Chunks:   make(map[string][]*types.StreamChunk),
	}
}

func (s *MemStore) PutSession(ctx context.Context, session *types.RecordingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *session
	s.Sessions[session.ID] = &snapshot
	return nil
}

func (s *MemStore) GetSession(ctx context.Context, id string) (*types.RecordingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	snapshot := *session
	return &snapshot, nil
}

func (s *MemStore) UpdateSession(ctx context.Context, id string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	for k, v := range data {
		switch k {
		case "state":
			session.State = v.(types.SessionState)
		case "finishedAt":
			t := v.(time.Time)
			session.FinishedAt = &t
		case "totalElapsedSec":
			session.TotalElapsedSec = v.(float64)
		case "movingSec":
			session.MovingSec = v.(float64)
		case "dataPointsRecorded":
			session.DataPointsRecorded = v.(int)
		case "lastCheckpointAt":
			session.LastCheckpointAt = v.(time.Time)
		}
	}
	return nil
}

func (s *MemStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Sessions, id)
	return nil
}

func (s *MemStore) PutChunk(ctx context.Context, chunk *types.StreamChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *chunk
	s.Chunks[chunk.SessionID] = append(s.Chunks[chunk.SessionID], &snapshot)
	return nil
}

func (s *MemStore) ListChunks(ctx context.Context, sessionID string) ([]*types.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := append([]*types.StreamChunk(nil), s.Chunks[sessionID]...)
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (s *MemStore) DeleteChunks(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Chunks, sessionID)
	return nil
}
