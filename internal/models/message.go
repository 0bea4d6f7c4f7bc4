package models

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MessageKind tags the variant of a Message.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindSharedPost MessageKind = "post"
)

// DeliveryState is the local lifecycle of a message as seen by its viewer.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

const sharedPostPreview = "Shared a post"

var (
	ErrSelfMessage         = errors.New("sender and receiver must differ")
	ErrEmptyText           = errors.New("message text is empty")
	ErrMissingPost         = errors.New("shared post requires an image url")
	ErrUnexpectedPost      = errors.New("plain text message cannot carry a post")
	ErrInvalidParticipants = errors.New("participants must be exactly sender and receiver")
)

var validate = validator.New()

// SharedPost is the post reference attached to a shared-post message.
type SharedPost struct {
	ImageURL string `json:"image_url" validate:"required,url"`
	Caption  string `json:"caption"`
}

// Message represents a direct message between two users.
type Message struct {
	ID           string        `json:"id"`
	Text         string        `json:"text"`
	SenderID     string        `json:"sender_id"`
	ReceiverID   string        `json:"receiver_id"`
	Participants []string      `json:"participants"`
	Kind         MessageKind   `json:"kind"`
	Post         *SharedPost   `json:"post,omitempty"`
	Read         bool          `json:"read"`
	CreatedAt    time.Time     `json:"created_at"`
	State        DeliveryState `json:"state,omitempty"`
}

// Involves reports whether userID is one of the message participants.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// OtherParticipant returns the participant that is not viewerID.
func (m Message) OtherParticipant(viewerID string) string {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Preview is the text shown in a conversation list for this message.
func (m Message) Preview() string {
	if m.Kind == KindSharedPost && strings.TrimSpace(m.Text) == "" {
		return sharedPostPreview
	}
	return m.Text
}

// NewerThan orders messages by creation time, breaking ties by id.
func (m Message) NewerThan(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.After(other.CreatedAt)
	}
	return m.ID > other.ID
}

// NewMessage is a message about to be written to the store.
type NewMessage struct {
	SenderID   string      `validate:"required"`
	ReceiverID string      `validate:"required"`
	Text       string      `validate:"max=4000"`
	Kind       MessageKind `validate:"oneof=text post"`
	Post       *SharedPost
}

// Participants is always the sender/receiver pair.
func (n NewMessage) Participants() []string {
	return []string{n.SenderID, n.ReceiverID}
}

// Validate checks the variant rules before anything reaches a store.
func (n NewMessage) Validate() error {
	if err := validate.Struct(n); err != nil {
		return err
	}
	if n.SenderID == n.ReceiverID {
		return ErrSelfMessage
	}
	switch n.Kind {
	case KindText:
		if strings.TrimSpace(n.Text) == "" {
			return ErrEmptyText
		}
		if n.Post != nil {
			return ErrUnexpectedPost
		}
	case KindSharedPost:
		if n.Post == nil {
			return ErrMissingPost
		}
		if err := validate.Struct(n.Post); err != nil {
			return ErrMissingPost
		}
	}
	return nil
}

// ValidateParticipants checks a stored participant set against the pair.
func ValidateParticipants(participants []string, senderID, receiverID string) error {
	if len(participants) != 2 {
		return ErrInvalidParticipants
	}
	a, b := participants[0], participants[1]
	if (a == senderID && b == receiverID) || (a == receiverID && b == senderID) {
		return nil
	}
	return ErrInvalidParticipants
}
