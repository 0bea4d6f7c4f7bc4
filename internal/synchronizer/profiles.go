package synchronizer

import (
	"context"
	"log"

	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
)

// DecorateProfiles attaches the other participant's profile to each conversation.
// Profiles that cannot be loaded are shown as the unknown user.
func DecorateProfiles(ctx context.Context, users repositories.UserRepository, convs []models.Conversation) []models.Conversation {
	out := cloneConversations(convs)
	if len(out) == 0 {
		return out
	}

	profiles := make(map[string]models.UserProfile, len(out))
	if users != nil {
		ids := make([]string, 0, len(out))
		for _, c := range out {
			ids = append(ids, c.OtherUserID)
		}
		found, err := users.BulkUsers(ctx, ids)
		if err != nil {
			log.Printf("profile lookup failed count=%d err=%v", len(ids), err)
		}
		for _, u := range found {
			profiles[u.ID] = u
		}
	}

	for i := range out {
		profile, ok := profiles[out[i].OtherUserID]
		if !ok {
			profile = models.UserProfile{ID: out[i].OtherUserID, DisplayName: models.UnknownUserName}
		}
		out[i].OtherUser = &profile
	}
	return out
}
