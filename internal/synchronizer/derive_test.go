package synchronizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-service/internal/models"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func msg(id, from, to string, at int, read bool) models.Message {
	return models.Message{
		ID:           id,
		Text:         "text " + id,
		SenderID:     from,
		ReceiverID:   to,
		Participants: []string{from, to},
		Kind:         models.KindText,
		Read:         read,
		CreatedAt:    t0.Add(time.Duration(at) * time.Second),
	}
}

func TestBuildConversationsUnreadFollowsNewestMessage(t *testing.T) {
	convs := BuildConversations("b", []models.Message{
		msg("m1", "a", "b", 1, false),
		msg("m2", "b", "a", 2, false),
		msg("m3", "c", "b", 3, false),
		msg("m4", "b", "d", 4, false),
		msg("m5", "d", "b", 5, true),
	})
	require.Len(t, convs, 3)

	byID := map[string]models.Conversation{}
	for _, c := range convs {
		byID[c.ID] = c
	}
	// newest in a is the viewer's own reply
	assert.False(t, byID["a"].Unread)
	assert.True(t, byID["c"].Unread)
	assert.False(t, byID["d"].Unread)
	assert.Equal(t, "m2", byID["a"].LastMessageID)
	assert.Equal(t, "b", byID["a"].LastSenderID)
}

func TestBuildConversationsOrdering(t *testing.T) {
	convs := BuildConversations("v", []models.Message{
		msg("m1", "a", "v", 10, false),
		msg("m3", "b", "v", 20, false),
		msg("m2", "c", "v", 20, false),
		msg("m9", "d", "v", 5, false),
	})
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	// equal timestamps fall back to the message id, descending
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
}

func TestBuildConversationsTieWithinConversation(t *testing.T) {
	convs := BuildConversations("v", []models.Message{
		msg("m1", "a", "v", 10, true),
		msg("m2", "a", "v", 10, false),
	})
	require.Len(t, convs, 1)
	assert.Equal(t, "m2", convs[0].LastMessageID)
	assert.True(t, convs[0].Unread)
}

func TestBuildConversationsSharedPostPreview(t *testing.T) {
	post := msg("m1", "a", "v", 1, false)
	post.Kind = models.KindSharedPost
	post.Text = ""
	post.Post = &models.SharedPost{ImageURL: "https://img/p.jpg"}

	convs := BuildConversations("v", []models.Message{post})
	require.Len(t, convs, 1)
	assert.Equal(t, "Shared a post", convs[0].LastMessage)
}

func TestBuildConversationsIgnoresForeignMessages(t *testing.T) {
	convs := BuildConversations("v", []models.Message{
		msg("m1", "a", "b", 1, false),
		msg("m2", "v", "v", 2, false),
	})
	assert.Empty(t, convs)
}
