package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	shared "github.com/pulsetrack/recorder/pkg"
	"github.com/pulsetrack/recorder/pkg/types"
)

// FirestoreAdapter persists sessions and their stream chunks. Chunks live
// in a subcollection under each session document so a session delete and
// its chunk sweep share one ancestor path.
type FirestoreAdapter struct {
	Client *firestore.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{Client: client}
}

func (a *FirestoreAdapter) sessionDoc(id string) *firestore.DocumentRef {
	return a.Client.Collection(shared.CollectionSessions).Doc(id)
}

func (a *FirestoreAdapter) chunkCollection(sessionID string) *firestore.CollectionRef {
	return a.sessionDoc(sessionID).Collection(shared.CollectionChunks)
}

func (a *FirestoreAdapter) PutSession(ctx context.Context, session *types.RecordingSession) error {
	_, err := a.sessionDoc(session.ID).Set(ctx, session)
	return err
}

func (a *FirestoreAdapter) GetSession(ctx context.Context, id string) (*types.RecordingSession, error) {
	doc, err := a.sessionDoc(id).Get(ctx)
	if err != nil {
		return nil, err
	}
	var session types.RecordingSession
	if err := doc.DataTo(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (a *FirestoreAdapter) UpdateSession(ctx context.Context, id string, data map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(data))
	for k, v := range data {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := a.sessionDoc(id).Update(ctx, updates)
	return err
}

func (a *FirestoreAdapter) DeleteSession(ctx context.Context, id string) error {
	_, err := a.sessionDoc(id).Delete(ctx)
	return err
}

// Profile reads the athlete profile document. Profiles are maintained
// elsewhere; this adapter only ever reads them.
func (a *FirestoreAdapter) Profile(ctx context.Context, ownerID string) (*types.AthleteProfile, error) {
	doc, err := a.Client.Collection(shared.CollectionAthletes).Doc(ownerID).Get(ctx)
	if err != nil {
		return nil, err
	}
	var profile types.AthleteProfile
	if err := doc.DataTo(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (a *FirestoreAdapter) PutChunk(ctx context.Context, chunk *types.StreamChunk) error {
	docID := fmt.Sprintf("%s-%06d", chunk.Metric, chunk.Index)
	_, err := a.chunkCollection(chunk.SessionID).Doc(docID).Set(ctx, chunk)
	return err
}

// ListChunks returns every chunk for the session ordered by index. The
// caller groups by metric; within one metric the index order is the
// sample order.
func (a *FirestoreAdapter) ListChunks(ctx context.Context, sessionID string) ([]*types.StreamChunk, error) {
	iter := a.chunkCollection(sessionID).OrderBy("index", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var chunks []*types.StreamChunk
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var chunk types.StreamChunk
		if err := doc.DataTo(&chunk); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, nil
}

func (a *FirestoreAdapter) DeleteChunks(ctx context.Context, sessionID string) error {
	iter := a.chunkCollection(sessionID).Documents(ctx)
	defer iter.Stop()

	bw := a.Client.BulkWriter(ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return err
		}
		if _, err := bw.Delete(doc.Ref); err != nil {
			return err
		}
	}
	bw.End()
	return nil
}
