package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"inbox-service/internal/models"
)

const messageColumns = `id, text, sender_id, receiver_id, participants, kind, post_image, post_caption, read, created_at`

type messageRow struct {
	ID           string         `db:"id"`
	Text         string         `db:"text"`
	SenderID     string         `db:"sender_id"`
	ReceiverID   string         `db:"receiver_id"`
	Participants pq.StringArray `db:"participants"`
	Kind         string         `db:"kind"`
	PostImage    sql.NullString `db:"post_image"`
	PostCaption  sql.NullString `db:"post_caption"`
	Read         bool           `db:"read"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	msg := models.Message{
		ID:           r.ID,
		Text:         r.Text,
		SenderID:     r.SenderID,
		ReceiverID:   r.ReceiverID,
		Participants: []string(r.Participants),
		Kind:         models.MessageKind(r.Kind),
		Read:         r.Read,
		CreatedAt:    r.CreatedAt,
	}
	// rows written before participants existed are read as the sender/receiver pair
	if len(msg.Participants) == 0 {
		msg.Participants = []string{r.SenderID, r.ReceiverID}
	}
	if msg.Kind == "" {
		msg.Kind = models.KindText
	}
	if msg.Kind == models.KindSharedPost {
		msg.Post = &models.SharedPost{ImageURL: r.PostImage.String, Caption: r.PostCaption.String}
	}
	return msg
}

func rowsToModels(rows []messageRow) []models.Message {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs
}

// MessageRepo is a sqlx-backed MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage validates and stores a message; id and timestamp come from the database.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	var image, caption sql.NullString
	if msg.Post != nil {
		image = sql.NullString{String: msg.Post.ImageURL, Valid: true}
		caption = sql.NullString{String: msg.Post.Caption, Valid: msg.Post.Caption != ""}
	}

	var row messageRow
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (text, sender_id, receiver_id, participants, kind, post_image, post_caption)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+messageColumns,
		msg.Text, msg.SenderID, msg.ReceiverID, pq.Array(msg.Participants()), string(msg.Kind), image, caption).
		StructScan(&row)
	if err != nil {
		return models.Message{}, wrapPG(err, "insert message")
	}
	return row.toModel(), nil
}

// ListMessagesForUser returns every message whose participants contain userID, newest first.
func (r *MessageRepo) ListMessagesForUser(ctx context.Context, userID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE $1 = ANY(participants)
        ORDER BY created_at DESC, id DESC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, wrapPG(err, "list messages for user")
	}
	return rowsToModels(rows), nil
}

// ListMessagesBetween returns the messages exchanged by two users, oldest first.
func (r *MessageRepo) ListMessagesBetween(ctx context.Context, userID string, otherID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE participants @> ARRAY[$1, $2]::text[]
        ORDER BY created_at ASC, id ASC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, otherID); err != nil {
		return nil, wrapPG(err, "list messages between users")
	}
	return rowsToModels(rows), nil
}

// MarkRead flips the read flag of the given inbound messages in one statement.
// Messages already read or not addressed to receiverID are left alone.
func (r *MessageRepo) MarkRead(ctx context.Context, receiverID string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE
        WHERE id = ANY($1::uuid[]) AND receiver_id = $2 AND read = FALSE`, pq.Array(messageIDs), receiverID)
	if err != nil {
		return 0, wrapPG(err, "mark messages read")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, wrapPG(err, "mark messages read")
	}
	return int(count), nil
}

// BackfillParticipants fills the participants column for legacy rows.
func (r *MessageRepo) BackfillParticipants(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET participants = ARRAY[sender_id, receiver_id]
        WHERE participants IS NULL OR cardinality(participants) <> 2`)
	if err != nil {
		return 0, wrapPG(err, "backfill participants")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, wrapPG(err, "backfill participants")
	}
	return int(count), nil
}
