package synchronizer

import (
	"sort"

	"inbox-service/internal/models"
)

// BuildConversations groups the messages visible to viewerID by the other
// participant. The newest message of each group, by (CreatedAt, ID), is the
// representative; a conversation is unread only when that message came from
// the other participant and is unread. The result is newest activity first.
func BuildConversations(viewerID string, msgs []models.Message) []models.Conversation {
	latest := make(map[string]models.Message)
	for _, m := range msgs {
		if !m.Involves(viewerID) || m.SenderID == m.ReceiverID {
			continue
		}
		other := m.OtherParticipant(viewerID)
		if cur, ok := latest[other]; !ok || m.NewerThan(cur) {
			latest[other] = m
		}
	}

	convs := make([]models.Conversation, 0, len(latest))
	for other, m := range latest {
		convs = append(convs, conversationFrom(viewerID, other, m))
	}
	sortConversations(convs)
	return convs
}

func conversationFrom(viewerID, otherID string, last models.Message) models.Conversation {
	return models.Conversation{
		ID:              otherID,
		Participants:    []string{viewerID, otherID},
		OtherUserID:     otherID,
		LastMessage:     last.Preview(),
		LastMessageID:   last.ID,
		LastMessageTime: last.CreatedAt,
		LastSenderID:    last.SenderID,
		LastState:       last.State,
		Unread:          last.SenderID == otherID && !last.Read,
	}
}

func shellConversation(viewerID, otherID string) models.Conversation {
	return models.Conversation{
		ID:           otherID,
		Participants: []string{viewerID, otherID},
		OtherUserID:  otherID,
	}
}

// sortConversations orders by last activity descending; equal timestamps fall
// back to the representative message id, then the conversation id.
func sortConversations(convs []models.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.LastMessageTime.Equal(b.LastMessageTime) {
			return a.LastMessageTime.After(b.LastMessageTime)
		}
		if a.LastMessageID != b.LastMessageID {
			return a.LastMessageID > b.LastMessageID
		}
		return a.ID < b.ID
	})
}
