package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
)

func TestMessageDocToModel(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	legacy := messageDoc{Text: "hi", SenderID: "a", ReceiverID: "b", Timestamp: ts}.toModel("m1")
	assert.Equal(t, "m1", legacy.ID)
	assert.Equal(t, []string{"a", "b"}, legacy.Participants)
	assert.Equal(t, models.KindText, legacy.Kind)
	assert.Nil(t, legacy.Post)
	assert.Equal(t, ts, legacy.CreatedAt)

	post := messageDoc{
		SenderID:     "a",
		ReceiverID:   "b",
		Participants: []string{"a", "b"},
		Type:         "post",
		PostImage:    "https://img.example/p.jpg",
		PostCaption:  "pasta",
	}.toModel("m2")
	require.NotNil(t, post.Post)
	assert.Equal(t, models.KindSharedPost, post.Kind)
	assert.Equal(t, "pasta", post.Post.Caption)
}

func TestUserDocToModel(t *testing.T) {
	user := userDoc{Name: "Ann", ProfileImage: "https://img/a.png", FCMToken: "tok"}.toModel("u1")
	assert.Equal(t, models.UserProfile{ID: "u1", DisplayName: "Ann", AvatarURL: "https://img/a.png", DeviceToken: "tok"}, user)
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 0, 1001)
	for i := 0; i < 1001; i++ {
		ids = append(ids, "x")
	}
	chunks := chunkIDs(ids, 500)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[2], 1)
	assert.Empty(t, chunkIDs(nil, 500))
}

func TestWrapFS(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), transient: true},
		{name: "deadline status", err: status.Error(codes.DeadlineExceeded, "slow"), transient: true},
		{name: "exhausted", err: status.Error(codes.ResourceExhausted, "quota"), transient: true},
		{name: "aborted", err: status.Error(codes.Aborted, "contention"), transient: true},
		{name: "context deadline", err: context.DeadlineExceeded, transient: true},
		{name: "permission", err: status.Error(codes.PermissionDenied, "no"), transient: false},
		{name: "plain", err: errors.New("boom"), transient: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := wrapFS(tc.err, "op")
			require.Error(t, wrapped)
			assert.Equal(t, tc.transient, errors.Is(wrapped, repositories.ErrUnavailable))
		})
	}
	assert.NoError(t, wrapFS(nil, "op"))
}
