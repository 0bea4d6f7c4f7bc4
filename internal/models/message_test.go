package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageValidateText(t *testing.T) {
	msg := NewMessage{SenderID: "a", ReceiverID: "b", Text: "hi", Kind: KindText}
	require.NoError(t, msg.Validate())

	msg.Text = "   "
	assert.True(t, errors.Is(msg.Validate(), ErrEmptyText))

	msg.Text = "hi"
	msg.ReceiverID = "a"
	assert.True(t, errors.Is(msg.Validate(), ErrSelfMessage))
}

func TestNewMessageValidateSharedPost(t *testing.T) {
	msg := NewMessage{SenderID: "a", ReceiverID: "b", Kind: KindSharedPost}
	assert.True(t, errors.Is(msg.Validate(), ErrMissingPost))

	msg.Post = &SharedPost{ImageURL: "https://bucket.s3.eu-west-1.amazonaws.com/posts/1.jpg", Caption: "pasta"}
	require.NoError(t, msg.Validate())

	plain := NewMessage{SenderID: "a", ReceiverID: "b", Text: "x", Kind: KindText, Post: msg.Post}
	assert.True(t, errors.Is(plain.Validate(), ErrUnexpectedPost))
}

func TestNewMessageValidateUnknownKind(t *testing.T) {
	msg := NewMessage{SenderID: "a", ReceiverID: "b", Text: "x", Kind: "video"}
	require.Error(t, msg.Validate())
}

func TestValidateParticipants(t *testing.T) {
	require.NoError(t, ValidateParticipants([]string{"a", "b"}, "a", "b"))
	require.NoError(t, ValidateParticipants([]string{"b", "a"}, "a", "b"))
	require.ErrorIs(t, ValidateParticipants([]string{"a"}, "a", "b"), ErrInvalidParticipants)
	require.ErrorIs(t, ValidateParticipants([]string{"a", "c"}, "a", "b"), ErrInvalidParticipants)
}

func TestMessageOrderingAndPreview(t *testing.T) {
	base := time.Unix(100, 0)
	older := Message{ID: "m1", CreatedAt: base}
	newer := Message{ID: "m2", CreatedAt: base.Add(time.Second)}
	tie := Message{ID: "m3", CreatedAt: base}

	assert.True(t, newer.NewerThan(older))
	assert.False(t, older.NewerThan(newer))
	assert.True(t, tie.NewerThan(older))

	post := Message{Kind: KindSharedPost, Post: &SharedPost{ImageURL: "https://x/y.jpg"}}
	assert.Equal(t, "Shared a post", post.Preview())
	post.Text = "look"
	assert.Equal(t, "look", post.Preview())
}

func TestMessageParticipants(t *testing.T) {
	msg := Message{SenderID: "a", ReceiverID: "b"}
	assert.True(t, msg.Involves("a"))
	assert.False(t, msg.Involves("c"))
	assert.Equal(t, "b", msg.OtherParticipant("a"))
	assert.Equal(t, "a", msg.OtherParticipant("b"))
}

func TestUserProfileName(t *testing.T) {
	assert.Equal(t, UnknownUserName, UserProfile{ID: "x"}.Name())
	assert.Equal(t, "Ana", UserProfile{ID: "x", DisplayName: "Ana"}.Name())
}
