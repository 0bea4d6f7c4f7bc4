package firestore

import (
	"context"

	fs "cloud.google.com/go/firestore"

	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
)

// Feed streams the viewer's messages through Firestore query snapshots.
type Feed struct {
	messages *MessageRepo
}

func NewFeed(messages *MessageRepo) *Feed {
	return &Feed{messages: messages}
}

func (f *Feed) Open(ctx context.Context, userID string) (repositories.MessageStream, error) {
	iter := f.messages.forUserQuery(userID).Snapshots(ctx)
	return &snapshotStream{iter: iter}, nil
}

type snapshotStream struct {
	iter *fs.QuerySnapshotIterator
}

// Next blocks until the query result changes; the iterator is bound to the Open context.
func (s *snapshotStream) Next(ctx context.Context) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qs, err := s.iter.Next()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrapFS(err, "message snapshot")
	}
	snaps, err := qs.Documents.GetAll()
	if err != nil {
		return nil, wrapFS(err, "message snapshot documents")
	}
	return snapshotsToMessages(snaps)
}

func (s *snapshotStream) Close() error {
	s.iter.Stop()
	return nil
}
