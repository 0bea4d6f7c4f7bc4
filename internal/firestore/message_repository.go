package firestore

import (
	"context"
	"sort"
	"time"

	fs "cloud.google.com/go/firestore"

	"inbox-service/internal/models"
)

const (
	messagesCollection = "messages"
	// a transaction may hold at most 500 writes
	maxBatchWrites = 500
)

type messageDoc struct {
	Text         string    `firestore:"text"`
	SenderID     string    `firestore:"senderId"`
	ReceiverID   string    `firestore:"receiverId"`
	Participants []string  `firestore:"participants,omitempty"`
	Type         string    `firestore:"type,omitempty"`
	PostImage    string    `firestore:"postImage,omitempty"`
	PostCaption  string    `firestore:"postCaption,omitempty"`
	Read         bool      `firestore:"read"`
	Timestamp    time.Time `firestore:"timestamp"`
}

func (d messageDoc) toModel(id string) models.Message {
	msg := models.Message{
		ID:           id,
		Text:         d.Text,
		SenderID:     d.SenderID,
		ReceiverID:   d.ReceiverID,
		Participants: d.Participants,
		Kind:         models.MessageKind(d.Type),
		Read:         d.Read,
		CreatedAt:    d.Timestamp,
	}
	if len(msg.Participants) == 0 {
		msg.Participants = []string{d.SenderID, d.ReceiverID}
	}
	if msg.Kind == "" {
		msg.Kind = models.KindText
	}
	if msg.Kind == models.KindSharedPost {
		msg.Post = &models.SharedPost{ImageURL: d.PostImage, Caption: d.PostCaption}
	}
	return msg
}

func snapshotToMessage(snap *fs.DocumentSnapshot) (models.Message, error) {
	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.Message{}, err
	}
	return doc.toModel(snap.Ref.ID), nil
}

func snapshotsToMessages(snaps []*fs.DocumentSnapshot) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(snaps))
	for _, snap := range snaps {
		msg, err := snapshotToMessage(snap)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// MessageRepo stores messages in a Firestore collection.
type MessageRepo struct {
	client *fs.Client
}

func NewMessageRepo(client *fs.Client) *MessageRepo {
	return &MessageRepo{client: client}
}

func (r *MessageRepo) collection() *fs.CollectionRef {
	return r.client.Collection(messagesCollection)
}

func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	data := map[string]interface{}{
		"text":         msg.Text,
		"senderId":     msg.SenderID,
		"receiverId":   msg.ReceiverID,
		"participants": msg.Participants(),
		"type":         string(msg.Kind),
		"read":         false,
		"timestamp":    fs.ServerTimestamp,
	}
	if msg.Post != nil {
		data["postImage"] = msg.Post.ImageURL
		data["postCaption"] = msg.Post.Caption
	}

	ref := r.collection().NewDoc()
	if _, err := ref.Set(ctx, data); err != nil {
		return models.Message{}, wrapFS(err, "create message")
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return models.Message{}, wrapFS(err, "read created message")
	}
	return snapshotToMessage(snap)
}

func (r *MessageRepo) forUserQuery(userID string) fs.Query {
	return r.collection().
		Where("participants", "array-contains", userID).
		OrderBy("timestamp", fs.Desc)
}

func (r *MessageRepo) ListMessagesForUser(ctx context.Context, userID string) ([]models.Message, error) {
	snaps, err := r.forUserQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFS(err, "list messages")
	}
	return snapshotsToMessages(snaps)
}

// ListMessagesBetween filters in memory; Firestore allows one array-contains per query.
func (r *MessageRepo) ListMessagesBetween(ctx context.Context, userID string, otherID string) ([]models.Message, error) {
	all, err := r.ListMessagesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	between := make([]models.Message, 0)
	for _, msg := range all {
		if msg.Involves(otherID) {
			between = append(between, msg)
		}
	}
	sort.SliceStable(between, func(i, j int) bool {
		return between[j].NewerThan(between[i])
	})
	return between, nil
}

// MarkRead flips read on the given inbound messages, in chunks of one transaction each.
func (r *MessageRepo) MarkRead(ctx context.Context, receiverID string, messageIDs []string) (int, error) {
	total := 0
	for _, chunk := range chunkIDs(messageIDs, maxBatchWrites) {
		marked := 0
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
			marked = 0
			refs := make([]*fs.DocumentRef, 0, len(chunk))
			for _, id := range chunk {
				refs = append(refs, r.collection().Doc(id))
			}
			snaps, err := tx.GetAll(refs)
			if err != nil {
				return err
			}
			for _, snap := range snaps {
				if !snap.Exists() {
					continue
				}
				var doc messageDoc
				if err := snap.DataTo(&doc); err != nil {
					return err
				}
				if doc.ReceiverID != receiverID || doc.Read {
					continue
				}
				if err := tx.Update(snap.Ref, []fs.Update{{Path: "read", Value: true}}); err != nil {
					return err
				}
				marked++
			}
			return nil
		})
		if err != nil {
			return total, wrapFS(err, "mark read")
		}
		total += marked
	}
	return total, nil
}

// BackfillParticipants writes participants on documents created before the field existed.
func (r *MessageRepo) BackfillParticipants(ctx context.Context) (int, error) {
	snaps, err := r.collection().Documents(ctx).GetAll()
	if err != nil {
		return 0, wrapFS(err, "scan messages")
	}
	missing := make([]*fs.DocumentSnapshot, 0)
	for _, snap := range snaps {
		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			continue
		}
		if len(doc.Participants) == 0 && doc.SenderID != "" && doc.ReceiverID != "" {
			missing = append(missing, snap)
		}
	}

	updated := 0
	for start := 0; start < len(missing); start += maxBatchWrites {
		end := start + maxBatchWrites
		if end > len(missing) {
			end = len(missing)
		}
		part := missing[start:end]
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
			for _, snap := range part {
				var doc messageDoc
				if err := snap.DataTo(&doc); err != nil {
					return err
				}
				participants := []string{doc.SenderID, doc.ReceiverID}
				if err := tx.Update(snap.Ref, []fs.Update{{Path: "participants", Value: participants}}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return updated, wrapFS(err, "backfill participants")
		}
		updated += len(part)
	}
	return updated, nil
}

func chunkIDs(ids []string, size int) [][]string {
	chunks := make([][]string, 0, len(ids)/size+1)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
