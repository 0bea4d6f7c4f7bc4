package repositories

import (
	"context"
	"errors"

	"inbox-service/internal/models"
)

var (
	// ErrUserNotFound is returned when the user directory has no profile for an id.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnavailable marks connectivity failures that are worth retrying.
	ErrUnavailable = errors.New("store unavailable")
)

// MessageRepository is the persisted message store.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	ListMessagesForUser(ctx context.Context, userID string) ([]models.Message, error)
	ListMessagesBetween(ctx context.Context, userID string, otherID string) ([]models.Message, error)
	MarkRead(ctx context.Context, receiverID string, messageIDs []string) (int, error)
	BackfillParticipants(ctx context.Context) (int, error)
}

// UserRepository is the read-only user directory.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.UserProfile, error)
	BulkUsers(ctx context.Context, ids []string) ([]models.UserProfile, error)
	ListFollowed(ctx context.Context, userID string) ([]models.UserProfile, error)
}

// MessageFeed opens live queries over the messages visible to a user.
type MessageFeed interface {
	Open(ctx context.Context, userID string) (MessageStream, error)
}

// MessageStream yields full snapshots of a user's messages, one per change.
type MessageStream interface {
	Next(ctx context.Context) ([]models.Message, error)
	Close() error
}
