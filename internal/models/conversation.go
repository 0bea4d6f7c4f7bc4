package models

import "time"

// Conversation is the thread between a viewer and exactly one other user,
// reconstructed from the messages they exchanged.
type Conversation struct {
	ID              string        `json:"id"`
	Participants    []string      `json:"participants"`
	OtherUserID     string        `json:"other_user_id"`
	LastMessage     string        `json:"last_message"`
	LastMessageID   string        `json:"last_message_id,omitempty"`
	LastMessageTime time.Time     `json:"last_message_time"`
	LastSenderID    string        `json:"last_sender_id,omitempty"`
	LastState       DeliveryState `json:"last_state,omitempty"`
	Unread          bool          `json:"unread"`
	OtherUser       *UserProfile  `json:"other_user,omitempty"`
}

// IsShell reports whether the conversation has no messages yet.
func (c Conversation) IsShell() bool {
	return c.LastMessageID == ""
}
